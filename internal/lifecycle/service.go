// Package lifecycle implements the reservation approval state machine.
// Every committed transition invalidates the affected cache tags and
// enqueues the external side effects (calendar sync, notifications) as
// outbox tasks; the external calls themselves never gate a commit.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"venuebook/internal/cache"
	"venuebook/internal/database"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
	"venuebook/internal/outbox"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID    int64
	Admin bool
}

// Repository is the persistence boundary the service operates against.
type Repository interface {
	CreateReservation(ctx context.Context, r *models.Reservation, occurrences []models.DateOccurrence, fees []models.Fee) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetOccurrence(ctx context.Context, id int64) (*models.DateOccurrence, error)
	ListOccurrences(ctx context.Context, reservationID int64) ([]models.DateOccurrence, error)
	UpdateOccurrenceStatus(ctx context.Context, id int64, status models.Status) error
	UpdateOccurrenceStatusBulk(ctx context.Context, ids []int64, status models.Status) error
	UpdateReservationStatus(ctx context.Context, id int64, status models.Status) error
	DeleteOccurrence(ctx context.Context, id int64) error
	DeleteReservation(ctx context.Context, id int64) error
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
}

// TaskEnqueuer queues a deferred external effect alongside the domain rows.
type TaskEnqueuer interface {
	EnqueueTask(ctx context.Context, task *outbox.Task) error
}

// DropPayload carries everything the calendar-drop handler needs once the
// occurrence row may already be gone.
type DropPayload struct {
	OccurrenceID int64  `json:"occurrence_id"`
	CalendarID   string `json:"calendar_id"`
	EventID      string `json:"event_id"`
}

// Service performs lifecycle operations on reservations and occurrences.
type Service struct {
	repo   Repository
	tasks  TaskEnqueuer
	cache  *cache.Cache
	fsm    *FSM
	logger *zerolog.Logger
}

// NewService constructs the lifecycle service.
func NewService(repo Repository, tasks TaskEnqueuer, c *cache.Cache, logger *zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tasks:  tasks,
		cache:  c,
		fsm:    NewFSM(),
		logger: logger,
	}
}

// CreateReservation validates and persists a new reservation with its
// occurrences and fees, then queues the creation notification.
func (s *Service) CreateReservation(ctx context.Context, r *models.Reservation, occurrences []models.DateOccurrence, fees []models.Fee) error {
	if r.EventName == "" {
		return fmt.Errorf("%w: event name is required", ErrValidation)
	}
	if len(occurrences) == 0 {
		return fmt.Errorf("%w: at least one date occurrence is required", ErrValidation)
	}
	for i := range occurrences {
		occ := &occurrences[i]
		if !occ.EndTime.After(occ.StartTime) {
			return fmt.Errorf("%w: occurrence end must be after start", ErrValidation)
		}
	}

	if err := s.repo.CreateReservation(ctx, r, occurrences, fees); err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	metrics.IncReservationCreated()

	s.invalidateReservation(ctx, r)

	if err := s.tasks.EnqueueTask(ctx, &outbox.Task{
		Type:      outbox.TaskNotifyCreated,
		SubjectID: r.ID,
		DedupKey:  fmt.Sprintf("notify_created:%d", r.ID),
	}); err != nil {
		// The reservation is committed; a lost notification is a warning,
		// not a failure of the operation.
		s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("failed to enqueue creation notification")
	}

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("event", r.EventName).
		Int("occurrences", len(occurrences)).
		Msg("reservation created")
	return nil
}

// ApproveOccurrence approves one date occurrence. Approving any occurrence
// of a pending reservation promotes the reservation's aggregate status to
// approved (source-system cascade, kept deliberately).
func (s *Service) ApproveOccurrence(ctx context.Context, actor Actor, occurrenceID int64) error {
	return s.decideOccurrence(ctx, actor, occurrenceID, models.StatusApproved)
}

// DenyOccurrence denies one date occurrence. The parent reservation's
// aggregate status is never demoted by a single denial.
func (s *Service) DenyOccurrence(ctx context.Context, actor Actor, occurrenceID int64) error {
	return s.decideOccurrence(ctx, actor, occurrenceID, models.StatusDenied)
}

func (s *Service) decideOccurrence(ctx context.Context, actor Actor, occurrenceID int64, status models.Status) error {
	if !actor.Admin {
		return fmt.Errorf("%w: only administrators decide occurrences", ErrUnauthorized)
	}

	occ, err := s.getOccurrence(ctx, occurrenceID)
	if err != nil {
		return err
	}
	if !s.fsm.CanTransition(occ.Status, status) {
		return fmt.Errorf("%w: occurrence %d is %s", ErrConflict, occurrenceID, occ.Status)
	}

	res, err := s.getReservation(ctx, occ.ReservationID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateOccurrenceStatus(ctx, occurrenceID, status); err != nil {
		return fmt.Errorf("update occurrence status: %w", err)
	}
	metrics.IncOccurrenceTransition(string(status))

	if status == models.StatusApproved && res.Status == models.StatusPending {
		if err := s.repo.UpdateReservationStatus(ctx, res.ID, models.StatusApproved); err != nil {
			return fmt.Errorf("promote reservation status: %w", err)
		}
		res.Status = models.StatusApproved
	}

	s.invalidateReservation(ctx, res)
	s.enqueueCalendarEffect(ctx, res, occ, status)

	s.logger.Info().
		Int64("occurrence_id", occurrenceID).
		Int64("reservation_id", res.ID).
		Str("status", string(status)).
		Msg("occurrence decided")
	return nil
}

// SetReservationStatus applies status to the listed occurrences in one
// transaction. When the list covers every occurrence of the reservation the
// aggregate status is set as well; a strict subset leaves the aggregate
// untouched.
func (s *Service) SetReservationStatus(ctx context.Context, actor Actor, reservationID int64, occurrenceIDs []int64, status models.Status) error {
	if !actor.Admin {
		return fmt.Errorf("%w: only administrators decide reservations", ErrUnauthorized)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if len(occurrenceIDs) == 0 {
		return fmt.Errorf("%w: no occurrences targeted", ErrValidation)
	}

	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	all, err := s.repo.ListOccurrences(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("list occurrences: %w", err)
	}

	byID := make(map[int64]*models.DateOccurrence, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}
	// Deduplicate the caller's list so repeated ids cannot inflate the
	// full-set check below.
	targeted := make([]*models.DateOccurrence, 0, len(occurrenceIDs))
	uniqueIDs := make([]int64, 0, len(occurrenceIDs))
	seen := make(map[int64]bool, len(occurrenceIDs))
	for _, id := range occurrenceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		occ, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: occurrence %d does not belong to reservation %d", ErrNotFound, id, reservationID)
		}
		if !s.fsm.CanTransition(occ.Status, status) {
			return fmt.Errorf("%w: occurrence %d is %s", ErrConflict, id, occ.Status)
		}
		targeted = append(targeted, occ)
		uniqueIDs = append(uniqueIDs, id)
	}

	if err := s.repo.UpdateOccurrenceStatusBulk(ctx, uniqueIDs, status); err != nil {
		return fmt.Errorf("bulk update occurrences: %w", err)
	}
	for range targeted {
		metrics.IncOccurrenceTransition(string(status))
	}

	if len(targeted) == len(all) {
		if err := s.repo.UpdateReservationStatus(ctx, reservationID, status); err != nil {
			return fmt.Errorf("update reservation status: %w", err)
		}
		res.Status = status
	}

	s.invalidateReservation(ctx, res)
	for _, occ := range targeted {
		s.enqueueCalendarEffect(ctx, res, occ, status)
	}

	s.logger.Info().
		Int64("reservation_id", reservationID).
		Int("occurrences", len(targeted)).
		Bool("full_set", len(targeted) == len(all)).
		Str("status", string(status)).
		Msg("reservation occurrences decided")
	return nil
}

// CancelReservation cancels the reservation and all of its occurrences.
func (s *Service) CancelReservation(ctx context.Context, actor Actor, reservationID int64) error {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(actor, res); err != nil {
		return err
	}
	if res.Status.Terminal() {
		return fmt.Errorf("%w: reservation %d already canceled", ErrConflict, reservationID)
	}

	all, err := s.repo.ListOccurrences(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("list occurrences: %w", err)
	}
	ids := make([]int64, 0, len(all))
	for i := range all {
		if !all[i].Status.Terminal() {
			ids = append(ids, all[i].ID)
		}
	}
	if err := s.repo.UpdateOccurrenceStatusBulk(ctx, ids, models.StatusCanceled); err != nil {
		return fmt.Errorf("cancel occurrences: %w", err)
	}
	if err := s.repo.UpdateReservationStatus(ctx, reservationID, models.StatusCanceled); err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	metrics.IncOccurrenceTransition(string(models.StatusCanceled))

	s.invalidateReservation(ctx, res)
	for i := range all {
		if all[i].Synced() {
			s.enqueueCalendarDrop(ctx, res, &all[i])
		}
	}

	s.logger.Info().Int64("reservation_id", reservationID).Msg("reservation canceled")
	return nil
}

// DeleteOccurrence removes one occurrence without touching siblings or the
// parent's aggregate status. A synced occurrence's external event is dropped
// afterwards via the outbox.
func (s *Service) DeleteOccurrence(ctx context.Context, actor Actor, occurrenceID int64) error {
	occ, err := s.getOccurrence(ctx, occurrenceID)
	if err != nil {
		return err
	}
	res, err := s.getReservation(ctx, occ.ReservationID)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(actor, res); err != nil {
		return err
	}

	if err := s.repo.DeleteOccurrence(ctx, occurrenceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: occurrence %d", ErrNotFound, occurrenceID)
		}
		return fmt.Errorf("delete occurrence: %w", err)
	}

	s.invalidateReservation(ctx, res)
	if occ.Synced() {
		s.enqueueCalendarDrop(ctx, res, occ)
	}

	s.logger.Info().
		Int64("occurrence_id", occurrenceID).
		Int64("reservation_id", res.ID).
		Msg("occurrence deleted")
	return nil
}

// DeleteReservation removes the reservation and, transactionally, all of its
// occurrences and fees. External events of synced occurrences are dropped
// afterwards via the outbox.
func (s *Service) DeleteReservation(ctx context.Context, actor Actor, reservationID int64) error {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(actor, res); err != nil {
		return err
	}

	// Snapshot synced occurrences before the rows disappear.
	all, err := s.repo.ListOccurrences(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("list occurrences: %w", err)
	}

	if err := s.repo.DeleteReservation(ctx, reservationID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: reservation %d", ErrNotFound, reservationID)
		}
		return fmt.Errorf("delete reservation: %w", err)
	}

	s.invalidateReservation(ctx, res)
	for i := range all {
		if all[i].Synced() {
			s.enqueueCalendarDrop(ctx, res, &all[i])
		}
	}

	s.logger.Info().Int64("reservation_id", reservationID).Msg("reservation deleted")
	return nil
}

func (s *Service) authorizeOwner(actor Actor, res *models.Reservation) error {
	if actor.Admin || actor.ID == res.RequesterID {
		return nil
	}
	return fmt.Errorf("%w: actor %d is neither owner nor administrator", ErrUnauthorized, actor.ID)
}

func (s *Service) getOccurrence(ctx context.Context, id int64) (*models.DateOccurrence, error) {
	occ, err := s.repo.GetOccurrence(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: occurrence %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}
	return occ, nil
}

func (s *Service) getReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: reservation %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// enqueueCalendarEffect queues the external calendar follow-up for a decided
// occurrence: sync on approval, drop on leaving approved while synced.
func (s *Service) enqueueCalendarEffect(ctx context.Context, res *models.Reservation, occ *models.DateOccurrence, status models.Status) {
	if status == models.StatusApproved {
		if err := s.tasks.EnqueueTask(ctx, &outbox.Task{
			Type:      outbox.TaskCalendarSync,
			SubjectID: occ.ID,
			DedupKey:  fmt.Sprintf("calendar_sync:%d", occ.ID),
		}); err != nil {
			s.logger.Warn().Err(err).Int64("occurrence_id", occ.ID).Msg("failed to enqueue calendar sync")
		}
		return
	}
	if occ.Synced() {
		s.enqueueCalendarDrop(ctx, res, occ)
	}
}

func (s *Service) enqueueCalendarDrop(ctx context.Context, res *models.Reservation, occ *models.DateOccurrence) {
	payload := DropPayload{OccurrenceID: occ.ID, EventID: occ.CalendarEventID}
	if facility, err := s.repo.GetFacility(ctx, res.FacilityID); err == nil {
		payload.CalendarID = facility.CalendarID
	} else {
		s.logger.Warn().Err(err).Int64("facility_id", res.FacilityID).Msg("facility lookup failed for calendar drop")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Int64("occurrence_id", occ.ID).Msg("failed to encode calendar drop payload")
		return
	}
	if err := s.tasks.EnqueueTask(ctx, &outbox.Task{
		Type:      outbox.TaskCalendarDrop,
		SubjectID: occ.ID,
		DedupKey:  fmt.Sprintf("calendar_drop:%d:%s", occ.ID, occ.CalendarEventID),
		Payload:   string(data),
	}); err != nil {
		s.logger.Warn().Err(err).Int64("occurrence_id", occ.ID).Msg("failed to enqueue calendar drop")
	}
}

func (s *Service) invalidateReservation(ctx context.Context, res *models.Reservation) {
	facilityBuilding := int64(0)
	if facility, err := s.repo.GetFacility(ctx, res.FacilityID); err == nil {
		facilityBuilding = facility.BuildingID
	}
	keys := []string{
		cache.ReservationKey(res.ID),
		cache.CostKey(res.ID),
		cache.CategoryKey(res.CategoryID),
		cache.FacilityKey(res.FacilityID),
	}
	if facilityBuilding != 0 {
		keys = append(keys, cache.BuildingKey(facilityBuilding))
	}
	s.cache.Invalidate(ctx, keys...)
}
