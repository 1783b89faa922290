package bridge

// State is the capture workflow position.
type State int

const (
	Idle State = iota
	AwaitingProjectionGrant
	Denied
	GrantedNoOverlay
	ShowingOverlay
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingProjectionGrant:
		return "awaiting_projection_grant"
	case Denied:
		return "denied"
	case GrantedNoOverlay:
		return "granted_no_overlay"
	case ShowingOverlay:
		return "showing_overlay"
	case Capturing:
		return "capturing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
