package dispatch

// State is the lifecycle phase of one connection handler.
type State int

const (
	// Registering: identity sent, waiting for the display name.
	Registering State = iota
	// Active: reading and answering commands.
	Active
	// Closing: recording the disconnect and closing the socket.
	Closing
	// Closed: terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Registering:
		return "registering"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
