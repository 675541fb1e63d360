// Package statsd emits DogStatsD lines over UDP for the auth flow counters.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const dialTimeout = 5 * time.Second

// Sink is what the auth and session services emit to. A nil *Client is a valid Sink.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to reach a StatsD-compatible agent.
type Config struct {
	Enabled bool
	Address string
	Prefix  string
	// GlobalTags are appended to every line, e.g. service and auth_mode.
	GlobalTags map[string]string
	Logger     *slog.Logger
}

// Client writes one datagram per metric. It is safe for concurrent use.
type Client struct {
	prefix string
	global []tag
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

type tag struct{ key, value string }

var _ Sink = (*Client)(nil)

// NewClient dials the agent. A disabled config or an empty address yields a
// client that drops every metric.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		prefix: cleanName(cfg.Prefix),
		global: collectTags(cfg.GlobalTags, nil),
		logger: logger,
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether metrics leave the process.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count increments a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.send(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Close drops the UDP socket. Later writes become no-ops.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := c.line(name, value, kind, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// line renders name:value|kind|#k:v,... with tags sorted by key.
func (c *Client) line(name, value, kind string, tags map[string]string) string {
	metric := cleanName(name)
	if metric == "" {
		return ""
	}
	if c.prefix != "" {
		metric = c.prefix + "." + metric
	}

	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)

	all := collectTags(tags, c.global)
	for i, t := range all {
		if i == 0 {
			b.WriteString("|#")
		} else {
			b.WriteByte(',')
		}
		b.WriteString(t.key)
		if t.value != "" {
			b.WriteByte(':')
			b.WriteString(t.value)
		}
	}
	return b.String()
}

// collectTags merges local over base and returns the result sorted by key.
func collectTags(local map[string]string, base []tag) []tag {
	if len(local) == 0 && len(base) == 0 {
		return nil
	}
	merged := make(map[string]string, len(local)+len(base))
	for _, t := range base {
		merged[t.key] = t.value
	}
	for k, v := range local {
		if key := cleanTag(k); key != "" {
			merged[key] = cleanTag(v)
		}
	}

	out := make([]tag, 0, len(merged))
	for k, v := range merged {
		out = append(out, tag{key: k, value: v})
	}
	slices.SortFunc(out, func(a, b tag) int { return strings.Compare(a.key, b.key) })
	return out
}

// cleanName keeps metric names within [A-Za-z0-9_.-], collapsing empty segments.
func cleanName(name string) string {
	parts := strings.FieldsFunc(strings.TrimSpace(name), func(r rune) bool { return r == '.' })
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.Map(nameRune, strings.TrimSpace(p)); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

func nameRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		return r
	default:
		return '_'
	}
}

// cleanTag strips the characters that delimit the DogStatsD tag section.
func cleanTag(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '|', ',', '#', ':', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}
