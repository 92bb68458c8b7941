// Package orcherr defines the typed error kinds surfaced on the wire as
// {status:"error", error:<string>} responses and recorded in the
// operations-state tracker for asynchronous work.
package orcherr

import "fmt"

// ValidationError signals a contract violation, an empty name, a duplicate
// (parent, subnet) pair, or a MAC conflict. Always surfaced synchronously
// on the request reply, never scheduled as background work.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidation(format string, arg ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, arg...)}
}

// ConflictError signals that an operation is already in progress for a
// given runtime name.
type ConflictError struct {
	Name string
	Op   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("operation %s already in progress for %s", e.Op, e.Name)
}

func NewConflict(name, op string) *ConflictError {
	return &ConflictError{Name: name, Op: op}
}

// DriverError wraps a rejection from the container daemon: create, start,
// or connect failed. For create, the partial state is left persisted and
// an operator must delete it; for network overlap during reconciliation,
// the caller is expected to recover by adopting the existing network
// rather than treating this as fatal.
type DriverError struct {
	Op    string
	Cause error
}

func (e *DriverError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("driver error: %s", e.Op)
	}
	return fmt.Sprintf("driver error: %s: %v", e.Op, e.Cause)
}

func (e *DriverError) Unwrap() error { return e.Cause }

func NewDriver(op string, cause error) *DriverError {
	return &DriverError{Op: op, Cause: cause}
}

// SidecarError signals that the netmon socket is missing or the
// connection was lost. The agent-side client retries on a fixed interval;
// callers should treat the interface cache as stale until reconnect.
type SidecarError struct {
	Msg   string
	Cause error
}

func (e *SidecarError) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
}

func (e *SidecarError) Unwrap() error { return e.Cause }

func NewSidecar(msg string, cause error) *SidecarError {
	return &SidecarError{Msg: msg, Cause: cause}
}

// DHCPError signals an invalid container PID, a missing netns, or an
// interface that could not be found by MAC after the retry budget was
// exhausted. Reported back through the start_dhcp reply; it does not fail
// the overall runtime creation, since the runtime container is already up.
type DHCPError struct {
	Msg string
}

func (e *DHCPError) Error() string { return e.Msg }

func NewDHCP(format string, arg ...interface{}) *DHCPError {
	return &DHCPError{Msg: fmt.Sprintf(format, arg...)}
}

// NotFound is not an error kind surfaced as status:"error" — handlers that
// encounter it reply with {status:"not_found", message}. It is typed here
// so callers can use errors.As uniformly with the other kinds.
type NotFound struct {
	Msg string
}

func (e *NotFound) Error() string { return e.Msg }

func NewNotFound(format string, arg ...interface{}) *NotFound {
	return &NotFound{Msg: fmt.Sprintf(format, arg...)}
}
