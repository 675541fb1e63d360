package service

import (
	"sync"
	"time"
)

// countingSink records metric counts by name and result tag.
type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingSink() *countingSink { return &countingSink{counts: map[string]int64{}} }

func (c *countingSink) Count(name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name+"|"+tags["stage"]+"|"+tags["result"]] += value
}

func (c *countingSink) Gauge(string, float64, map[string]string) {}

func (c *countingSink) Timing(string, time.Duration, map[string]string) {}

func (c *countingSink) get(name, stage, result string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name+"|"+stage+"|"+result]
}
