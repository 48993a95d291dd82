// Package api exposes the HTTP surface: the reservation endpoints, the
// payment provider's webhook, the admin report download and health probes.
// Authentication happens upstream; this service trusts the identity headers
// the gateway injects.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"venuebook/internal/cache"
	"venuebook/internal/database"
	"venuebook/internal/export"
	"venuebook/internal/lifecycle"
	"venuebook/internal/payments"
)

// Handler groups the collaborators behind the HTTP surface.
type Handler struct {
	lifecycle  *lifecycle.Service
	reconciler *payments.Reconciler
	db         *database.DB
	cache      *cache.Cache
	logger     *zerolog.Logger
}

// NewHandler constructs the HTTP handler set.
func NewHandler(svc *lifecycle.Service, reconciler *payments.Reconciler, db *database.DB, c *cache.Cache, logger *zerolog.Logger) *Handler {
	return &Handler{lifecycle: svc, reconciler: reconciler, db: db, cache: c, logger: logger}
}

// NewRouter wires the routes onto a fresh echo instance.
func NewRouter(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/reservations", h.CreateReservation)
	e.GET("/reservations/:id", h.GetReservation)
	e.POST("/reservations/:id/status", h.SetReservationStatus)
	e.POST("/reservations/:id/cancel", h.CancelReservation)
	e.DELETE("/reservations/:id", h.DeleteReservation)
	e.POST("/reservations/:id/payment-link", h.AssignPaymentLink)

	e.POST("/occurrences/:id/approve", h.ApproveOccurrence)
	e.POST("/occurrences/:id/deny", h.DenyOccurrence)
	e.DELETE("/occurrences/:id", h.DeleteOccurrence)

	e.GET("/reports/reservations.xlsx", h.ReservationsReport)

	e.POST("/webhooks/payment", h.PaymentWebhook)
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)
	return e
}

// ReservationsReport handles GET /reports/reservations.xlsx, streaming the
// spreadsheet straight into the response.
func (h *Handler) ReservationsReport(c echo.Context) error {
	if c.Request().Header.Get("X-User-Role") != "admin" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "administrators only"})
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="reservations.xlsx"`)
	c.Response().WriteHeader(http.StatusOK)
	if err := export.WriteReservationsReport(c.Request().Context(), h.db, c.Response()); err != nil {
		h.logger.Error().Err(err).Msg("reservations report failed")
		return err
	}
	return nil
}

// PaymentWebhook handles POST /webhooks/payment. The provider delivers
// confirmations at least once; duplicates are acknowledged with 200 so the
// provider stops retrying.
func (h *Handler) PaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable payload"})
	}

	linkID, err := payments.ParseConfirmation(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed payment confirmation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	if err := h.reconciler.Reconcile(c.Request().Context(), linkID); err != nil {
		if errors.Is(err, payments.ErrUnknownPaymentLink) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown payment link"})
		}
		h.logger.Error().Err(err).Str("payment_link_id", linkID).Msg("payment reconciliation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reconciliation failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Healthz reports liveness.
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Readyz reports readiness of the database and, when configured, Redis.
func (h *Handler) Readyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return c.String(http.StatusServiceUnavailable, "db not ready")
	}
	if err := h.cache.Ping(ctx); err != nil {
		return c.String(http.StatusServiceUnavailable, "redis not ready")
	}
	return c.String(http.StatusOK, "ready")
}
