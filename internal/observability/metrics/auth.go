package metrics

import (
	"time"

	obserrors "github.com/hakim-ai/identity-gateway/internal/observability/errors"
	"github.com/hakim-ai/identity-gateway/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPending = "pending"
)

// Login flow stages.
const (
	StageBegin    = "begin"
	StageCallback = "callback"
	StageResolve  = "resolve"
	StageSession  = "session"
)

// LoginMetric captures one step of the login flow for metric emission.
type LoginMetric struct {
	Stage    string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitLogin emits login flow counters and timings. Failed steps are tagged with the error kind.
func EmitLogin(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if kind := obserrors.Classify(in.Err); kind != "" {
			tags["kind"] = kind
		}
	}

	sink.Count("auth.login", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.login.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSessionValidation counts session validations by outcome.
func EmitSessionValidation(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["kind"] = obserrors.Classify(err)
	}
	sink.Count("auth.session.validate", 1, tags)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
