package dialogue

// State is a step of the ordering script. Steps only move forward, except
// StateConfirm which falls back to StateAdjustQuantities on rejection.
type State int

const (
	StateGreeting State = iota
	StateAskOccasion
	StateChooseDinner
	StateChooseStyle
	StateAdjustQuantities
	StateConfirm
	StateAnythingElse
	StateDone
)

var stateNames = [...]string{
	StateGreeting:         "greeting",
	StateAskOccasion:      "ask_occasion",
	StateChooseDinner:     "choose_dinner",
	StateChooseStyle:      "choose_style",
	StateAdjustQuantities: "adjust_quantities",
	StateConfirm:          "confirm",
	StateAnythingElse:     "anything_else",
	StateDone:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) Terminal() bool { return s == StateDone }

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
