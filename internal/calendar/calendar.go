// Package calendar mirrors approved date occurrences into an external
// scheduling service and keeps the per-occurrence back-references honest.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrExternal marks a failure of the external scheduling service. Callers
// treat it as retryable and never roll back committed state because of it.
var ErrExternal = errors.New("external calendar error")

// Event is the provider-independent payload for one mirrored occurrence.
type Event struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// API is the external scheduling service boundary.
type API interface {
	// CreateEvent creates an event on the given calendar and returns the
	// provider's event id.
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)

	// DeleteEvent removes an event. Deleting an event that is already gone
	// is not an error.
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
