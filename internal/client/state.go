package client

// State is the lifecycle state of a Controller.
type State int

const (
	// StateDisconnected is the initial and final state. The controller also
	// passes through it while waiting out a reconnect backoff.
	StateDisconnected State = iota
	// StateConnecting covers dialing the transport.
	StateConnecting
	// StateJoined means every channel acknowledged the join and the
	// snapshot is being fetched. Live events are buffered.
	StateJoined
	// StateLive means the snapshot is applied and events apply as they arrive.
	StateLive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}
