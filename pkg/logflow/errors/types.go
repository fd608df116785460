package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrIllegalState indicates an operation was invoked in the wrong
	// transaction or component state.
	ErrIllegalState = errors.New("illegal state")

	// ErrWrongWorker indicates a transaction was used by a worker other
	// than the one that obtained it.
	ErrWrongWorker = errors.New("transaction used from a different worker")

	// ErrNoTransaction indicates Put or Take was called before
	// GetTransaction for the calling worker.
	ErrNoTransaction = errors.New("no transaction exists for this worker")

	// ErrNilEvent indicates a nil event was handed to a channel.
	ErrNilEvent = errors.New("nil event")

	// ErrChannelFull indicates capacity exhaustion on a channel.
	ErrChannelFull = errors.New("channel full")

	// ErrUnknownType indicates a component type name has no registered
	// constructor.
	ErrUnknownType = errors.New("unknown component type")
)

// ChannelError is any failure raised while operating on a channel.
type ChannelError struct {
	// Channel is the name of the channel.
	Channel string
	// Op is the operation that failed ("begin", "put", "take", "commit", "rollback").
	Op string
	// Message describes the failure when there is no underlying error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("channel %s: %s: %s: %v", e.Channel, e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("channel %s: %s: %v", e.Channel, e.Op, e.Err)
	default:
		return fmt.Sprintf("channel %s: %s: %s", e.Channel, e.Op, e.Message)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ChannelFullError indicates a put or commit could not acquire event
// slots or byte budget within the channel's keep-alive.
type ChannelFullError struct {
	// Channel is the name of the channel.
	Channel string
	// Reason names the exhausted budget ("capacity", "byte capacity",
	// "transaction capacity").
	Reason string
	// Capacity is the configured size of the exhausted budget.
	Capacity int64
}

// Error implements the error interface.
func (e *ChannelFullError) Error() string {
	return fmt.Sprintf("channel %s full: %s of %d exhausted", e.Channel, e.Reason, e.Capacity)
}

// Unwrap returns ErrChannelFull for errors.Is support.
func (e *ChannelFullError) Unwrap() error {
	return ErrChannelFull
}

// StateError is a usage error: wrong worker, wrong transaction state or a
// missing transaction. These indicate a bug in the caller.
type StateError struct {
	// Op is the operation that was attempted.
	Op string
	// State is the state the object was in.
	State string
	// Err is ErrIllegalState or a more specific sentinel.
	Err error
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s called when transaction is %s: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error {
	return e.Err
}

// Is reports ErrIllegalState for every StateError.
func (e *StateError) Is(target error) bool {
	return target == ErrIllegalState
}

// NewStateError creates a usage error for op.
func NewStateError(op, state string, err error) *StateError {
	if err == nil {
		err = ErrIllegalState
	}
	return &StateError{Op: op, State: state, Err: err}
}

// ConfigError indicates malformed component configuration.
type ConfigError struct {
	// Component names the component being configured.
	Component string
	// Key is the offending configuration key, if known.
	Key string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configure %s: %s: %v", e.Component, e.Key, e.Err)
	}
	return fmt.Sprintf("configure %s: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error with a formatted message.
func NewConfigError(component, key, format string, args ...any) *ConfigError {
	return &ConfigError{
		Component: component,
		Key:       key,
		Err:       fmt.Errorf(format, args...),
	}
}

// DeliveryError indicates a source or sink could not deliver events.
// Runners count these separately from unexpected errors.
type DeliveryError struct {
	// Component is the source or sink name.
	Component string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("unable to deliver event from %s: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}
