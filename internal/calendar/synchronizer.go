package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"venuebook/internal/database"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

// Store is the slice of persistence the synchronizer needs.
type Store interface {
	GetOccurrence(ctx context.Context, id int64) (*models.DateOccurrence, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
	SetOccurrenceCalendarEvent(ctx context.Context, id int64, eventID string) error
}

// Synchronizer keeps the external calendar consistent with approved
// occurrences.
type Synchronizer struct {
	store  Store
	api    API
	logger *zerolog.Logger
}

// NewSynchronizer constructs a synchronizer.
func NewSynchronizer(store Store, api API, logger *zerolog.Logger) *Synchronizer {
	return &Synchronizer{store: store, api: api, logger: logger}
}

// Sync ensures the occurrence is mirrored as an external event and persists
// the returned event id as the back-reference.
//
// Invariants honored here: an occurrence that is no longer approved (or no
// longer exists) is skipped, and an occurrence that already carries a
// back-reference is a no-op so retries never create a duplicate artifact.
func (s *Synchronizer) Sync(ctx context.Context, occurrenceID int64) error {
	occ, err := s.store.GetOccurrence(ctx, occurrenceID)
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Debug().Int64("occurrence_id", occurrenceID).Msg("occurrence gone before calendar sync")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get occurrence: %w", err)
	}
	if occ.Status != models.StatusApproved {
		s.logger.Debug().
			Int64("occurrence_id", occurrenceID).
			Str("status", string(occ.Status)).
			Msg("occurrence no longer approved, skipping calendar sync")
		return nil
	}
	if occ.Synced() {
		metrics.IncCalendarSync("create", "noop")
		return nil
	}

	res, err := s.store.GetReservation(ctx, occ.ReservationID)
	if err != nil {
		return fmt.Errorf("get reservation: %w", err)
	}
	facility, err := s.store.GetFacility(ctx, res.FacilityID)
	if err != nil {
		return fmt.Errorf("get facility: %w", err)
	}
	if facility.CalendarID == "" {
		s.logger.Warn().Int64("facility_id", facility.ID).Msg("facility has no calendar configured")
		return nil
	}

	event := s.buildEvent(res, occ, facility)
	eventID, err := s.api.CreateEvent(ctx, facility.CalendarID, event)
	if err != nil {
		metrics.IncCalendarSync("create", "error")
		return fmt.Errorf("create event for occurrence %d: %w", occurrenceID, err)
	}

	if err := s.store.SetOccurrenceCalendarEvent(ctx, occurrenceID, eventID); err != nil {
		// The external event exists but the back-reference did not stick;
		// the retry will find the row unsynced and the guard above cannot
		// help, so surface loudly.
		metrics.IncCalendarSync("create", "orphan")
		return fmt.Errorf("persist back-reference for occurrence %d: %w", occurrenceID, err)
	}

	metrics.IncCalendarSync("create", "ok")
	s.logger.Info().
		Int64("occurrence_id", occurrenceID).
		Str("event_id", eventID).
		Str("calendar_id", facility.CalendarID).
		Msg("occurrence synchronized to calendar")
	return nil
}

// Drop removes the external event of an occurrence that was denied,
// canceled or deleted, then clears the back-reference if the row still
// exists. Orphaned events from the source system's behavior are cleaned up
// here instead of being left behind.
func (s *Synchronizer) Drop(ctx context.Context, occurrenceID int64, calendarID, eventID string) error {
	if calendarID == "" || eventID == "" {
		return nil
	}
	if err := s.api.DeleteEvent(ctx, calendarID, eventID); err != nil {
		metrics.IncCalendarSync("delete", "error")
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	metrics.IncCalendarSync("delete", "ok")

	err := s.store.SetOccurrenceCalendarEvent(ctx, occurrenceID, "")
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("clear back-reference for occurrence %d: %w", occurrenceID, err)
	}

	s.logger.Info().
		Int64("occurrence_id", occurrenceID).
		Str("event_id", eventID).
		Msg("calendar event dropped")
	return nil
}

func (s *Synchronizer) buildEvent(res *models.Reservation, occ *models.DateOccurrence, facility *models.Facility) Event {
	tz := facility.TimeZone
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.Warn().Str("time_zone", tz).Int64("facility_id", facility.ID).Msg("unknown facility time zone, using UTC")
		loc = time.UTC
		tz = "UTC"
	}
	return Event{
		Title:       res.EventName,
		Description: res.Details,
		Start:       occ.StartTime.In(loc),
		End:         occ.EndTime.In(loc),
		TimeZone:    tz,
	}
}
