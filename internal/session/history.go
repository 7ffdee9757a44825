package session

import "encoding/json"

// HistoryCapacity is the deepest the dialogue can go: every step before CONFIRM.
const HistoryCapacity = 4

// History is a fixed-capacity stack of previously visited steps.
// Pushing onto a full stack discards the oldest entry.
type History struct {
	steps [HistoryCapacity]Step
	n     int
}

// Push records s as the most recently left step.
func (h *History) Push(s Step) {
	if h.n == HistoryCapacity {
		copy(h.steps[:], h.steps[1:])
		h.n--
	}
	h.steps[h.n] = s
	h.n++
}

// Pop removes and returns the most recent step. An empty history yields StepMenu.
func (h *History) Pop() Step {
	if h.n == 0 {
		return StepMenu
	}
	h.n--
	return h.steps[h.n]
}

// Len returns the number of recorded steps.
func (h *History) Len() int { return h.n }

// Reset empties the history.
func (h *History) Reset() { h.n = 0 }

// Steps returns the recorded steps, oldest first.
func (h History) Steps() []Step {
	out := make([]Step, h.n)
	copy(out, h.steps[:h.n])
	return out
}

// MarshalJSON encodes the history as a list of step names.
func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Steps())
}

// UnmarshalJSON decodes a list of step names.
func (h *History) UnmarshalJSON(b []byte) error {
	var steps []Step
	if err := json.Unmarshal(b, &steps); err != nil {
		return err
	}
	h.Reset()
	for _, s := range steps {
		h.Push(s)
	}
	return nil
}
