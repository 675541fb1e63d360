package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func readLine(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClient_EmitsTaggedLines(t *testing.T) {
	pc := listenUDP(t)
	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     " hakim. ",
		GlobalTags: map[string]string{"service": "hakim-identity", "auth_mode": "oauth"},
	})
	require.NoError(t, err)
	defer client.Close()
	require.True(t, client.Enabled())

	client.Count("auth.login", 1, map[string]string{"stage": "callback", "result": "error", "kind": "invalid|grant"})
	assert.Equal(t,
		"hakim.auth.login:1|c|#auth_mode:oauth,kind:invalid_grant,result:error,service:hakim-identity,stage:callback",
		readLine(t, pc))

	client.Timing("auth.login.duration", 1500*time.Microsecond, map[string]string{"service": "override"})
	assert.Equal(t,
		"hakim.auth.login.duration:1.5|ms|#auth_mode:oauth,service:override",
		readLine(t, pc))
}

func TestClient_CloseDisables(t *testing.T) {
	pc := listenUDP(t)
	client, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String()})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())

	// Writes after close are dropped silently.
	client.Count("auth.session.validate", 1, nil)
}

func TestClient_NilAndDisabled(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	nilClient.Count("auth.login", 1, nil)
	nilClient.Timing("auth.login.duration", time.Second, nil)

	for _, cfg := range []Config{
		{Enabled: false, Address: "127.0.0.1:8125"},
		{Enabled: true, Address: "   "},
	} {
		client, err := NewClient(cfg)
		require.NoError(t, err)
		assert.False(t, client.Enabled())
	}
}

func TestNewClient_DialError(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestClient_Line(t *testing.T) {
	c := &Client{prefix: "hakim"}

	tests := []struct {
		name string
		in   string
		tags map[string]string
		want string
	}{
		{name: "plain", in: "auth.login", want: "hakim.auth.login:1|c"},
		{name: "empty", in: "  ", want: ""},
		{name: "collapses dots", in: ".auth..login.", want: "hakim.auth.login:1|c"},
		{name: "replaces unsafe runes", in: "auth/login stage", want: "hakim.auth_login_stage:1|c"},
		{name: "drops empty tag keys", in: "x", tags: map[string]string{" ": "v", "k": ""}, want: "hakim.x:1|c|#k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.line(tt.in, "1", "c", tt.tags))
		})
	}
}
