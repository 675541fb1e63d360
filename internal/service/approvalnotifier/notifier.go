package approvalnotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hakim-ai/identity-gateway/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the approval notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service tells approvers about registrations waiting for them.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs an approval notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Service{
		logger: logger.With("component", "approval_notifier"),
		sinks:  sinks,
	}
}

// NotifyPendingRegistration fans the payload out to all sinks and waits for delivery.
// Delivery failures are logged; registration never fails because a notification did.
func (s *Service) NotifyPendingRegistration(ctx context.Context, payload notify.RegistrationPayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendPendingRegistration(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "approval notification delivery error",
					"sink", entry.Name,
					"account_id", payload.AccountID,
					"role", payload.Role,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
