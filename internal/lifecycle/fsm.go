package lifecycle

import "venuebook/internal/models"

// FSM validates approval-status transitions for reservations and their date
// occurrences. Both levels share the same rules: canceled is terminal, and
// nothing returns to pending. Approve/deny on an already-decided row is
// deliberately permitted; administrators reverse decisions in practice.
type FSM struct {
	transitions map[models.Status][]models.Status
}

// NewFSM creates the FSM with the predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.Status][]models.Status{
			models.StatusPending:  {models.StatusApproved, models.StatusDenied, models.StatusCanceled},
			models.StatusApproved: {models.StatusApproved, models.StatusDenied, models.StatusCanceled},
			models.StatusDenied:   {models.StatusApproved, models.StatusDenied, models.StatusCanceled},
			models.StatusCanceled: {},
		},
	}
}

// CanTransition checks if the transition is allowed.
func (f *FSM) CanTransition(from, to models.Status) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
