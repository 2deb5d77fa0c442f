package looper

// State is the looper's transport state. The recording and playing flags are
// derived from it, so contradictory flag combinations cannot occur.
type State int

const (
	StateStopped State = iota
	StateRecording
	StateOverdubbing
	StatePlaying
)

func stateFor(recording, playing bool) State {
	switch {
	case recording && playing:
		return StateOverdubbing
	case recording:
		return StateRecording
	case playing:
		return StatePlaying
	default:
		return StateStopped
	}
}

func (s State) Recording() bool {
	return s == StateRecording || s == StateOverdubbing
}

func (s State) Playing() bool {
	return s == StatePlaying || s == StateOverdubbing
}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRecording:
		return "recording"
	case StateOverdubbing:
		return "overdubbing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}
