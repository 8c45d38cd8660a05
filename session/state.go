package session

// State is the position of a worker in its session lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Authenticated
	Cycling
	CoolingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Cycling:
		return "cycling"
	case CoolingDown:
		return "cooling_down"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}
