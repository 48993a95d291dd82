package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuebook/internal/cache"
	"venuebook/internal/database"
	"venuebook/internal/lifecycle"
	"venuebook/internal/models"
	"venuebook/internal/payments"
)

type testServer struct {
	e  *echo.Echo
	db *database.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := cache.New(nil, 0)
	svc := lifecycle.NewService(db, db, c, &logger)
	reconciler := payments.NewReconciler(db, c, "https://pay.example.org/link", &logger)
	e := NewRouter(NewHandler(svc, reconciler, db, c, &logger))
	return &testServer{e: e, db: db}
}

func (s *testServer) request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func asUser(id int64) map[string]string {
	return map[string]string{"X-User-ID": fmt.Sprintf("%d", id)}
}

func asAdmin() map[string]string {
	return map[string]string{"X-User-ID": "1", "X-User-Role": "admin"}
}

func createPayload() map[string]any {
	start := time.Date(2026, 10, 3, 18, 0, 0, 0, time.UTC)
	return map[string]any{
		"facility_id": 7,
		"category_id": 2,
		"event_name":  "Bake Sale",
		"occurrences": []map[string]any{
			{"start_time": start, "end_time": start.Add(2 * time.Hour)},
		},
		"fees": []map[string]any{
			{"amount": 1500, "type": "cleaning"},
		},
	}
}

func (s *testServer) createReservation(t *testing.T) int64 {
	t.Helper()
	rec := s.request(http.MethodPost, "/reservations", createPayload(), asUser(5))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.ID)
	return resp.ID
}

func TestCreateAndGetReservation(t *testing.T) {
	s := newTestServer(t)
	id := s.createReservation(t)

	rec := s.request(http.MethodGet, fmt.Sprintf("/reservations/%d", id), nil, asUser(5))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Reservation models.Reservation      `json:"reservation"`
		Occurrences []models.DateOccurrence `json:"occurrences"`
		Cost        models.Money            `json:"cost"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bake Sale", resp.Reservation.EventName)
	assert.Equal(t, models.StatusPending, resp.Reservation.Status)
	assert.Len(t, resp.Occurrences, 1)
	// Nothing approved yet, so only the fee is owed.
	assert.Equal(t, models.Money(1500), resp.Cost)
}

func TestCreateReservationRejectsInvalid(t *testing.T) {
	s := newTestServer(t)

	payload := createPayload()
	payload["event_name"] = ""
	rec := s.request(http.MethodPost, "/reservations", payload, asUser(5))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReservationNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.request(http.MethodGet, "/reservations/999", nil, asUser(5))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.request(http.MethodGet, "/reservations/abc", nil, asUser(5))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveOccurrence(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := s.createReservation(t)

	occurrences, err := s.db.ListOccurrences(ctx, id)
	require.NoError(t, err)
	occID := occurrences[0].ID

	// Non-admins cannot decide.
	rec := s.request(http.MethodPost, fmt.Sprintf("/occurrences/%d/approve", occID), nil, asUser(5))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.request(http.MethodPost, fmt.Sprintf("/occurrences/%d/approve", occID), nil, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	occ, err := s.db.GetOccurrence(ctx, occID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, occ.Status)

	// Approval promotes the pending aggregate and queues a calendar sync.
	res, err := s.db.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, res.Status)

	tasks, err := s.db.DueTasks(ctx, 10)
	require.NoError(t, err)
	found := false
	for _, task := range tasks {
		if task.Type == "calendar_sync" && task.SubjectID == occID {
			found = true
		}
	}
	assert.True(t, found, "expected a queued calendar sync task")
}

func TestCancelReservationAuthorization(t *testing.T) {
	s := newTestServer(t)
	id := s.createReservation(t)

	rec := s.request(http.MethodPost, fmt.Sprintf("/reservations/%d/cancel", id), nil, asUser(6))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.request(http.MethodPost, fmt.Sprintf("/reservations/%d/cancel", id), nil, asUser(5))
	require.Equal(t, http.StatusOK, rec.Code)

	// A second cancel conflicts with the terminal state.
	rec = s.request(http.MethodPost, fmt.Sprintf("/reservations/%d/cancel", id), nil, asUser(5))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetReservationStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := s.createReservation(t)

	occurrences, err := s.db.ListOccurrences(ctx, id)
	require.NoError(t, err)

	body := map[string]any{
		"occurrence_ids": []int64{occurrences[0].ID},
		"status":         "denied",
	}
	rec := s.request(http.MethodPost, fmt.Sprintf("/reservations/%d/status", id), body, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	occ, err := s.db.GetOccurrence(ctx, occurrences[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, occ.Status)

	// The full set was not targeted, so the aggregate stays pending.
	res, err := s.db.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
}

func TestDeleteReservation(t *testing.T) {
	s := newTestServer(t)
	id := s.createReservation(t)

	rec := s.request(http.MethodDelete, fmt.Sprintf("/reservations/%d", id), nil, asUser(5))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.request(http.MethodGet, fmt.Sprintf("/reservations/%d", id), nil, asUser(5))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentLinkAndWebhook(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id := s.createReservation(t)

	rec := s.request(http.MethodPost, fmt.Sprintf("/reservations/%d/payment-link", id), nil, asUser(5))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.request(http.MethodPost, fmt.Sprintf("/reservations/%d/payment-link", id), nil, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)

	var link struct {
		PaymentLinkID string `json:"payment_link_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	require.NotEmpty(t, link.PaymentLinkID)

	confirmation := map[string]any{
		"event": "payment.succeeded",
		"data":  map[string]any{"object": map[string]any{"id": link.PaymentLinkID}},
	}
	rec = s.request(http.MethodPost, "/webhooks/payment", confirmation, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res, err := s.db.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Paid)

	// The provider retries; the duplicate is acknowledged.
	rec = s.request(http.MethodPost, "/webhooks/payment", confirmation, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhookRejectsBadPayloads(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(http.MethodPost, "/webhooks/payment", map[string]any{"event": "noise"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.request(http.MethodPost, "/webhooks/payment", map[string]any{"order_id": "link_unknown"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationsReport(t *testing.T) {
	s := newTestServer(t)
	s.createReservation(t)

	rec := s.request(http.MethodGet, "/reports/reservations.xlsx", nil, asUser(5))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.request(http.MethodGet, "/reports/reservations.xlsx", nil, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotZero(t, rec.Body.Len())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.request(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
