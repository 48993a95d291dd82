package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"venuebook/internal/cache"
	"venuebook/internal/database"
	"venuebook/internal/lifecycle"
	"venuebook/internal/models"
	"venuebook/internal/pricing"
)

type createReservationRequest struct {
	FacilityID   int64  `json:"facility_id"`
	CategoryID   int64  `json:"category_id"`
	EventName    string `json:"event_name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Details      string `json:"details"`
	Occurrences  []struct {
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	} `json:"occurrences"`
	Fees []struct {
		Amount int64  `json:"amount"`
		Type   string `json:"type"`
	} `json:"fees"`
}

type reservationResponse struct {
	Reservation *models.Reservation     `json:"reservation"`
	Occurrences []models.DateOccurrence `json:"occurrences"`
	Fees        []models.Fee            `json:"fees"`
	Cost        models.Money            `json:"cost"`
}

// CreateReservation handles POST /reservations. The reservation is created
// pending for the calling user with at least one date occurrence.
func (h *Handler) CreateReservation(c echo.Context) error {
	actor := actorFrom(c)

	var req createReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	res := &models.Reservation{
		RequesterID:  actor.ID,
		FacilityID:   req.FacilityID,
		CategoryID:   req.CategoryID,
		EventName:    req.EventName,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Details:      req.Details,
	}
	occurrences := make([]models.DateOccurrence, 0, len(req.Occurrences))
	for _, o := range req.Occurrences {
		occurrences = append(occurrences, models.DateOccurrence{StartTime: o.StartTime, EndTime: o.EndTime})
	}
	fees := make([]models.Fee, 0, len(req.Fees))
	for _, f := range req.Fees {
		fees = append(fees, models.Fee{Amount: models.Money(f.Amount), Type: f.Type})
	}

	if err := h.lifecycle.CreateReservation(c.Request().Context(), res, occurrences, fees); err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": res.ID, "status": res.Status})
}

// GetReservation handles GET /reservations/:id. The assembled view is served
// read-through: a cache hit skips the database entirely, a miss populates
// the cache after loading.
func (h *Handler) GetReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()

	var view reservationResponse
	if h.cache.Read(ctx, cache.ReservationKey(id), &view) {
		return c.JSON(http.StatusOK, view)
	}

	res, err := h.db.GetReservation(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("reservation_id", id).Msg("load reservation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	occurrences, err := h.db.ListOccurrences(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	fees, err := h.db.ListFees(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	category, err := h.db.GetCategory(ctx, res.CategoryID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	view = reservationResponse{
		Reservation: res,
		Occurrences: occurrences,
		Fees:        fees,
		Cost:        pricing.ComputeCost(res, occurrences, fees, category),
	}
	h.cache.Write(ctx, cache.ReservationKey(id), view)
	return c.JSON(http.StatusOK, view)
}

// ApproveOccurrence handles POST /occurrences/:id/approve.
func (h *Handler) ApproveOccurrence(c echo.Context) error {
	return h.decideOccurrence(c, models.StatusApproved)
}

// DenyOccurrence handles POST /occurrences/:id/deny.
func (h *Handler) DenyOccurrence(c echo.Context) error {
	return h.decideOccurrence(c, models.StatusDenied)
}

func (h *Handler) decideOccurrence(c echo.Context, status models.Status) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	actor := actorFrom(c)

	if status == models.StatusApproved {
		err = h.lifecycle.ApproveOccurrence(c.Request().Context(), actor, id)
	} else {
		err = h.lifecycle.DenyOccurrence(c.Request().Context(), actor, id)
	}
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status})
}

type setStatusRequest struct {
	OccurrenceIDs []int64       `json:"occurrence_ids"`
	Status        models.Status `json:"status"`
}

// SetReservationStatus handles POST /reservations/:id/status, applying one
// status to a set of the reservation's occurrences in a single transaction.
func (h *Handler) SetReservationStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	if err := h.lifecycle.SetReservationStatus(c.Request().Context(), actorFrom(c), id, req.OccurrenceIDs, req.Status); err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": req.Status, "occurrences": len(req.OccurrenceIDs)})
}

// CancelReservation handles POST /reservations/:id/cancel.
func (h *Handler) CancelReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.lifecycle.CancelReservation(c.Request().Context(), actorFrom(c), id); err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": models.StatusCanceled})
}

// DeleteOccurrence handles DELETE /occurrences/:id.
func (h *Handler) DeleteOccurrence(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.lifecycle.DeleteOccurrence(c.Request().Context(), actorFrom(c), id); err != nil {
		return h.domainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteReservation handles DELETE /reservations/:id.
func (h *Handler) DeleteReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.lifecycle.DeleteReservation(c.Request().Context(), actorFrom(c), id); err != nil {
		return h.domainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AssignPaymentLink handles POST /reservations/:id/payment-link.
func (h *Handler) AssignPaymentLink(c echo.Context) error {
	if !actorFrom(c).Admin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "administrators only"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	linkID, linkURL, err := h.reconciler.AssignPaymentLink(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("reservation_id", id).Msg("assign payment link failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"payment_link_id": linkID, "payment_link_url": linkURL})
}

// domainError maps lifecycle errors onto HTTP status codes.
func (h *Handler) domainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Msg("lifecycle operation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// actorFrom reads the authenticated identity injected by the gateway.
// Authentication itself happens upstream of this service.
func actorFrom(c echo.Context) lifecycle.Actor {
	id, _ := strconv.ParseInt(c.Request().Header.Get("X-User-ID"), 10, 64)
	return lifecycle.Actor{
		ID:    id,
		Admin: c.Request().Header.Get("X-User-Role") == "admin",
	}
}

func pathID(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
