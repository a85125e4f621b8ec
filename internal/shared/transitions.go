package shared

import "fmt"

// Transitions maps each status to the statuses reachable from it. Document
// packages declare their lifecycle once and guard every mutation through it.
type Transitions[S comparable] map[S][]S

// Can reports whether from may move to to.
func (t Transitions[S]) Can(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Guard returns ErrInvalidState (wrapped with both statuses) when the move
// is not declared.
func (t Transitions[S]) Guard(from, to S) error {
	if !t.Can(from, to) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidState, from, to)
	}
	return nil
}
