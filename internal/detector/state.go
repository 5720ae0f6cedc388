package detector

// State is the scheduler state of a Detector.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateChecking
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateChecking:
		return "checking"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

type event int

const (
	eventStart event = iota
	eventFire
	eventFireHidden
	eventVisible
	eventRoundDone
	eventReloaded
	eventStop
)

type action int

const (
	actionNone action = iota
	actionSchedule
	actionCheck
	actionCancel
)

// transition is the whole scheduler policy; the Detector only executes actions.
func transition(s State, ev event) (State, action) {
	switch ev {
	case eventStop:
		return StateIdle, actionCancel
	case eventStart:
		if s == StateIdle || s == StatePaused {
			return StateScheduled, actionSchedule
		}
	case eventFire:
		if s == StateScheduled {
			return StateChecking, actionCheck
		}
	case eventFireHidden:
		if s == StateScheduled {
			return StatePaused, actionNone
		}
	case eventVisible:
		if s == StatePaused {
			return StateChecking, actionCheck
		}
	case eventRoundDone:
		if s == StateChecking {
			return StateScheduled, actionSchedule
		}
	case eventReloaded:
		if s == StateChecking {
			return StateIdle, actionNone
		}
	}
	return s, actionNone
}
