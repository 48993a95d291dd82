package calendar

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"venuebook/internal/database"
	"venuebook/internal/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetOccurrence(ctx context.Context, id int64) (*models.DateOccurrence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DateOccurrence), args.Error(1)
}
func (m *mockStore) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockStore) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Facility), args.Error(1)
}
func (m *mockStore) SetOccurrenceCalendarEvent(ctx context.Context, id int64, eventID string) error {
	return m.Called(ctx, id, eventID).Error(0)
}

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) CreateEvent(ctx context.Context, calendarID string, event Event) (string, error) {
	args := m.Called(ctx, calendarID, event)
	return args.String(0), args.Error(1)
}
func (m *mockAPI) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return m.Called(ctx, calendarID, eventID).Error(0)
}

func newTestSynchronizer(store *mockStore, api *mockAPI) *Synchronizer {
	logger := zerolog.New(io.Discard)
	return NewSynchronizer(store, api, &logger)
}

func approvedOccurrence() *models.DateOccurrence {
	start := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	return &models.DateOccurrence{
		ID:            10,
		ReservationID: 1,
		StartTime:     start,
		EndTime:       start.Add(3 * time.Hour),
		Status:        models.StatusApproved,
	}
}

func TestSyncCreatesEventAndStoresBackReference(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	store.On("GetOccurrence", ctx, int64(10)).Return(approvedOccurrence(), nil)
	store.On("GetReservation", ctx, int64(1)).
		Return(&models.Reservation{ID: 1, FacilityID: 7, EventName: "Craft Fair", Details: "tables needed"}, nil)
	store.On("GetFacility", ctx, int64(7)).
		Return(&models.Facility{ID: 7, Name: "Hall A", CalendarID: "cal_7", TimeZone: "America/Chicago"}, nil)
	api.On("CreateEvent", ctx, "cal_7", mock.MatchedBy(func(e Event) bool {
		return e.Title == "Craft Fair" && e.TimeZone == "America/Chicago"
	})).Return("evt_new", nil)
	store.On("SetOccurrenceCalendarEvent", ctx, int64(10), "evt_new").Return(nil)

	assert.NoError(t, s.Sync(ctx, 10))
	store.AssertExpectations(t)
	api.AssertExpectations(t)
}

func TestSyncAlreadySyncedIsNoop(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	occ := approvedOccurrence()
	occ.CalendarEventID = "evt_existing"
	store.On("GetOccurrence", ctx, int64(10)).Return(occ, nil)

	assert.NoError(t, s.Sync(ctx, 10))
	api.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncSkipsUnapprovedOccurrence(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	occ := approvedOccurrence()
	occ.Status = models.StatusDenied
	store.On("GetOccurrence", ctx, int64(10)).Return(occ, nil)

	assert.NoError(t, s.Sync(ctx, 10))
	api.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncToleratesDeletedOccurrence(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	store.On("GetOccurrence", ctx, int64(10)).Return(nil, database.ErrNotFound)

	assert.NoError(t, s.Sync(ctx, 10))
}

func TestSyncSkipsFacilityWithoutCalendar(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	store.On("GetOccurrence", ctx, int64(10)).Return(approvedOccurrence(), nil)
	store.On("GetReservation", ctx, int64(1)).Return(&models.Reservation{ID: 1, FacilityID: 7}, nil)
	store.On("GetFacility", ctx, int64(7)).Return(&models.Facility{ID: 7}, nil)

	assert.NoError(t, s.Sync(ctx, 10))
	api.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncSurfacesOrphanedBackReference(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	store.On("GetOccurrence", ctx, int64(10)).Return(approvedOccurrence(), nil)
	store.On("GetReservation", ctx, int64(1)).Return(&models.Reservation{ID: 1, FacilityID: 7}, nil)
	store.On("GetFacility", ctx, int64(7)).
		Return(&models.Facility{ID: 7, CalendarID: "cal_7", TimeZone: "UTC"}, nil)
	api.On("CreateEvent", ctx, "cal_7", mock.Anything).Return("evt_new", nil)
	store.On("SetOccurrenceCalendarEvent", ctx, int64(10), "evt_new").Return(errors.New("disk full"))

	assert.Error(t, s.Sync(ctx, 10))
}

func TestSyncPropagatesAPIError(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	store.On("GetOccurrence", ctx, int64(10)).Return(approvedOccurrence(), nil)
	store.On("GetReservation", ctx, int64(1)).Return(&models.Reservation{ID: 1, FacilityID: 7}, nil)
	store.On("GetFacility", ctx, int64(7)).
		Return(&models.Facility{ID: 7, CalendarID: "cal_7", TimeZone: "UTC"}, nil)
	api.On("CreateEvent", ctx, "cal_7", mock.Anything).Return("", ErrExternal)

	err := s.Sync(ctx, 10)
	assert.ErrorIs(t, err, ErrExternal)
	store.AssertNotCalled(t, "SetOccurrenceCalendarEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestDropDeletesEventAndClearsBackReference(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	api.On("DeleteEvent", ctx, "cal_7", "evt_abc").Return(nil)
	store.On("SetOccurrenceCalendarEvent", ctx, int64(10), "").Return(nil)

	assert.NoError(t, s.Drop(ctx, 10, "cal_7", "evt_abc"))
	api.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestDropToleratesDeletedRow(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)
	ctx := context.Background()

	api.On("DeleteEvent", ctx, "cal_7", "evt_abc").Return(nil)
	store.On("SetOccurrenceCalendarEvent", ctx, int64(10), "").Return(database.ErrNotFound)

	assert.NoError(t, s.Drop(ctx, 10, "cal_7", "evt_abc"))
}

func TestDropWithoutEventIsNoop(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)

	assert.NoError(t, s.Drop(context.Background(), 10, "cal_7", ""))
	api.AssertNotCalled(t, "DeleteEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildEventFallsBackToUTC(t *testing.T) {
	store := new(mockStore)
	api := new(mockAPI)
	s := newTestSynchronizer(store, api)

	occ := approvedOccurrence()
	event := s.buildEvent(
		&models.Reservation{EventName: "Recital"},
		occ,
		&models.Facility{ID: 7, TimeZone: "Not/AZone"},
	)
	assert.Equal(t, "UTC", event.TimeZone)
	assert.True(t, event.Start.Equal(occ.StartTime))
}
