package auth

import (
	"fmt"
	"strings"
	"time"
)

// FlowState is a step of the authorization code flow.
type FlowState string

const (
	FlowStart            FlowState = "START"
	FlowAwaitingCallback FlowState = "AWAITING_CALLBACK"
	FlowExchanging       FlowState = "EXCHANGING"
	FlowResolved         FlowState = "RESOLVED"
	FlowFailed           FlowState = "FAILED"
)

var flowTransitions = map[FlowState][]FlowState{
	FlowStart:            {FlowAwaitingCallback, FlowFailed},
	FlowAwaitingCallback: {FlowExchanging, FlowFailed},
	FlowExchanging:       {FlowResolved, FlowFailed},
}

// Terminal reports whether no further transition is possible.
func (s FlowState) Terminal() bool { return s == FlowResolved || s == FlowFailed }

// LoginAttempt is one in-flight authorization attempt, stored server-side until the callback consumes it.
type LoginAttempt struct {
	ID        string      `json:"id"`
	PKCE      PKCEContext `json:"pkce"`
	State     FlowState   `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
	// Registration is set when the attempt registers a new account instead of signing in.
	Registration *Registration `json:"registration,omitempty"`
}

// Registration is a self-registration request carried through the login flow.
type Registration struct {
	Role          Role   `json:"role"`
	LicenseNumber string `json:"license_number,omitempty"`
	HospitalID    string `json:"hospital_id,omitempty"`
}

// Validate checks the request before the user is sent to the provider.
func (r Registration) Validate() error {
	if !r.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, r.Role)
	}
	if r.Role == RoleSuperAdmin {
		return fmt.Errorf("%w: super_admin cannot be self-registered", ErrForbidden)
	}
	if r.Role == RoleDoctor && strings.TrimSpace(r.LicenseNumber) == "" {
		return fmt.Errorf("%w: license number is required for doctors", ErrInvalidRegistration)
	}
	if r.Role == RoleHospitalAdmin && strings.TrimSpace(r.HospitalID) == "" {
		return fmt.Errorf("%w: hospital id is required for hospital admins", ErrInvalidRegistration)
	}
	return nil
}

// InitialStatus is the status a new account gets for this registration.
func (r Registration) InitialStatus() AccountStatus {
	if r.Role.RequiresApproval() {
		return StatusPending
	}
	return StatusActive
}

// Transition moves the attempt to next, rejecting moves the flow does not allow.
func (a *LoginAttempt) Transition(next FlowState) error {
	for _, allowed := range flowTransitions[a.State] {
		if allowed == next {
			a.State = next
			return nil
		}
	}
	return fmt.Errorf("invalid login flow transition %s -> %s", a.State, next)
}

// Fail ends the attempt in FlowFailed and records the state it failed from. A terminal attempt
// keeps its state.
func (a *LoginAttempt) Fail(err error) *AttemptError {
	from := a.State
	if !from.Terminal() {
		a.State = FlowFailed
	}
	return &AttemptError{From: from, State: a.State, Err: err}
}

// AttemptError is a callback failure after the attempt was consumed. It wraps the flow error
// so errors.Is still matches its kind.
type AttemptError struct {
	From  FlowState
	State FlowState
	Err   error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("login attempt failed in state %s", e.From)
	}
	return e.Err.Error()
}

// Unwrap exposes the flow error.
func (e *AttemptError) Unwrap() error { return e.Err }
