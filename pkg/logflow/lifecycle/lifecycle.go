// Package lifecycle defines the start/stop states shared by channels,
// source runners and sink runners.
package lifecycle

import "context"

// State is the lifecycle state of a component.
type State int32

const (
	// Idle is the state of a component that has never been started.
	Idle State = iota
	// Start is the state of a running component.
	Start
	// Stop is the state of a component that was stopped cleanly.
	Stop
	// Error is the state of a component whose start or stop failed.
	Error
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Start:
		return "START"
	case Stop:
		return "STOP"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Aware is implemented by components with a start/stop lifecycle.
type Aware interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	LifecycleState() State
}
