package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.add(recordedMetric{kind: "count", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.add(recordedMetric{kind: "gauge", name: name, value: value, tags: tags})
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(recordedMetric{kind: "timing", name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) add(m recordedMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func TestEmitLogin(t *testing.T) {
	sink := &recordingSink{}
	EmitLogin(sink, LoginMetric{
		Stage:    StageCallback,
		Result:   ResultError,
		Duration: 40 * time.Millisecond,
		Err:      domainauth.NewFlowError(domainauth.ErrCsrfViolation, "state mismatch", nil),
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "auth.login", sink.metrics[0].name)
	assert.Equal(t, map[string]string{
		"stage": StageCallback, "result": ResultError, "kind": "csrf_violation",
	}, sink.metrics[0].tags)
	assert.Equal(t, "timing", sink.metrics[1].kind)
	assert.Equal(t, "auth.login.duration", sink.metrics[1].name)
}

func TestEmitLogin_SuccessHasNoKind(t *testing.T) {
	sink := &recordingSink{}
	EmitLogin(sink, LoginMetric{Stage: StageBegin, Result: ResultSuccess})
	require.Len(t, sink.metrics, 1)
	assert.NotContains(t, sink.metrics[0].tags, "kind")
	EmitLogin(nil, LoginMetric{Stage: StageBegin})
}

func TestEmitSessionValidation(t *testing.T) {
	sink := &recordingSink{}
	EmitSessionValidation(sink, nil)
	EmitSessionValidation(sink, domainauth.ErrUnauthenticated)
	require.Len(t, sink.metrics, 2)
	assert.Equal(t, ResultSuccess, sink.metrics[0].tags["result"])
	assert.Equal(t, "unauthenticated", sink.metrics[1].tags["kind"])
}
