package stream

// State is the lifecycle position of a Session.
type State int32

const (
	StateConnected State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
