// Package session holds per-user dialogue state and the stores that keep it between turns.
package session

import "fmt"

// Step is a stage of the booking dialogue.
type Step int

// The dialogue stages, in forward order.
const (
	StepMenu Step = iota
	StepChooseService
	StepChooseDate
	StepChooseTime
	StepConfirm
)

var stepNames = [...]string{
	StepMenu:          "MENU",
	StepChooseService: "CHOOSE_SERVICE",
	StepChooseDate:    "CHOOSE_DATE",
	StepChooseTime:    "CHOOSE_TIME",
	StepConfirm:       "CONFIRM",
}

// Steps lists every valid step.
func Steps() []Step {
	return []Step{StepMenu, StepChooseService, StepChooseDate, StepChooseTime, StepConfirm}
}

// Valid reports whether s is one of the defined steps.
func (s Step) Valid() bool {
	return s >= StepMenu && s <= StepConfirm
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// ParseStep converts a step name back into a Step.
func ParseStep(name string) (Step, error) {
	for _, s := range Steps() {
		if stepNames[s] == name {
			return s, nil
		}
	}
	return StepMenu, fmt.Errorf("unknown step %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(b []byte) error {
	parsed, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
