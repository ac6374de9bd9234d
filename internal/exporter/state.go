package exporter

// State is a step of the export state machine.
//
//	Idle -> OptionsMenuOpen -> InspectPath -> Downloaded
//	                        \-> MenuPath   -> Downloaded
//	InspectPath -> MenuPath (inspect failed, inspector closed)
//	any -> Failed
type State int

const (
	StateIdle State = iota
	StateOptionsMenuOpen
	StateInspectPath
	StateMenuPath
	StateDownloaded
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptionsMenuOpen:
		return "options_menu_open"
	case StateInspectPath:
		return "inspect_path"
	case StateMenuPath:
		return "menu_path"
	case StateDownloaded:
		return "downloaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions lists the legal successor states.
var transitions = map[State][]State{
	StateIdle:            {StateOptionsMenuOpen, StateFailed},
	StateOptionsMenuOpen: {StateInspectPath, StateMenuPath, StateFailed},
	StateInspectPath:     {StateMenuPath, StateDownloaded, StateFailed},
	StateMenuPath:        {StateDownloaded, StateFailed},
	StateDownloaded:      {StateIdle},
	StateFailed:          {StateIdle},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
