package notify

import (
	"context"
	"time"
)

// RegistrationPayload describes a self-registration waiting for an approver.
// It carries no decrypted profile fields.
type RegistrationPayload struct {
	AccountID     string
	Role          string
	Name          string
	LicenseNumber string
	HospitalID    string
	OccurredAt    time.Time
}

// Sink describes a destination capable of consuming pending registration notifications.
type Sink interface {
	SendPendingRegistration(ctx context.Context, payload RegistrationPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload RegistrationPayload) error

// SendPendingRegistration implements the Sink interface.
func (f SinkFunc) SendPendingRegistration(ctx context.Context, payload RegistrationPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
