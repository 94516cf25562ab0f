package session

// State is the session gate state.
type State int

const (
	NoSession State = iota
	AuthPending
	Authenticated
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case AuthPending:
		return "auth_pending"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
