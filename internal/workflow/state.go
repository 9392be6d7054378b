package workflow

import "errors"

// State step of an invoice submission
type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StatePersisting    State = "persisting"
	StateUpdatingStock State = "updating_stock"
	StatePrinting      State = "printing"
	StateCompleted     State = "completed"
	StateError         State = "error"
)

var transitions = map[State][]State{
	StateIdle:          {StateValidating},
	StateValidating:    {StatePersisting, StateError},
	StatePersisting:    {StateUpdatingStock, StateError},
	StateUpdatingStock: {StatePrinting, StateError},
	StatePrinting:      {StateCompleted, StateError},
	StateCompleted:     {StateValidating, StateIdle},
	// из Error: либо возврат в Idle, либо продолжение с упавшего шага
	StateError: {StateIdle, StateValidating, StatePersisting, StateUpdatingStock, StatePrinting},
}

// CanTransitionTo reports whether the state machine allows from → to.
func CanTransitionTo(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal for a single submission.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

func (s State) String() string { return string(s) }

var (
	// ErrSessionBusy a submission is running on the session
	ErrSessionBusy = errors.New("session busy: submission in progress")
	// ErrSubmissionPending the invoice is persisted but the submission has not completed;
	// the cart is frozen until it is resumed
	ErrSubmissionPending = errors.New("submission pending: resubmit to finish the persisted invoice")
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrInvoiceVoided the persisted invoice was voided before the submission
	// finished; the session is closed without touching stock or printing.
	ErrInvoiceVoided = errors.New("invoice voided while submission was pending")
)
