package pump

// State identifies where a session is in its lifecycle.
type State int32

const (
	// StatePriming is the initial state before activation.
	StatePriming State = iota
	// StateFilling means the fill loop is reading and enqueueing.
	StateFilling
	// StateAwaitingDrain means the session is suspended on sink events.
	StateAwaitingDrain
	// StateFinalizing means reading and flushing are done and owned
	// resources are being released.
	StateFinalizing
	// StateErrorTeardown means a fatal error is being cleaned up after.
	StateErrorTeardown
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePriming:
		return "priming"
	case StateFilling:
		return "filling"
	case StateAwaitingDrain:
		return "awaiting-drain"
	case StateFinalizing:
		return "finalizing"
	case StateErrorTeardown:
		return "error-teardown"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
