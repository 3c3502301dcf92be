package session

// State enumerates the session engine states.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
