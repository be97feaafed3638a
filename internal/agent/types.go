package agent

import "fmt"

// State is where a run is in its lifecycle.
type State string

const (
	StateInit              State = "init"
	StateIterating         State = "iterating"
	StateDone              State = "done"
	StateBudgetExceeded    State = "budget_exceeded"
	StateIterationExceeded State = "iteration_exceeded"
	// StateFailed means the collaborator could not produce a reply.
	StateFailed State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateBudgetExceeded, StateIterationExceeded, StateFailed:
		return true
	}
	return false
}

// Outcome is the result of one run.
type Outcome struct {
	State State
	// Answer is the collaborator's final text. Set only in StateDone.
	Answer string
	// Message explains a non-DONE stop.
	Message        string
	Iterations     int
	Cost           float64
	TrajectoryID   string
	TrajectoryPath string
}

// Text is what the caller shows: the answer on success, the stop message
// otherwise.
func (o *Outcome) Text() string {
	if o.State == StateDone {
		return o.Answer
	}
	return o.Message
}

func budgetMessage(spent, ceiling float64) string {
	return fmt.Sprintf("Cost limit exceeded ($%.2f of $%.2f). Stopping.", spent, ceiling)
}

func iterationMessage(max int) string {
	return fmt.Sprintf("Reached maximum iterations (%d). Partial progress made.", max)
}
