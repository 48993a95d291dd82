// Package payments applies external payment confirmations to reservations.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"venuebook/internal/cache"
	"venuebook/internal/database"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

// ErrUnknownPaymentLink is returned when no reservation carries the
// confirmed payment link id.
var ErrUnknownPaymentLink = errors.New("unknown payment link")

// Store is the slice of persistence the reconciler needs.
type Store interface {
	FindReservationByPaymentLink(ctx context.Context, paymentLinkID string) (*models.Reservation, error)
	MarkPaid(ctx context.Context, id int64) (bool, error)
	SetPaymentLink(ctx context.Context, id int64, linkID, linkURL string) error
}

// Reconciler applies payment-confirmation events. Webhook delivery is
// at-least-once, so every path here must be safe to repeat.
type Reconciler struct {
	store       Store
	cache       *cache.Cache
	linkBaseURL string
	logger      *zerolog.Logger
}

// NewReconciler constructs a reconciler. linkBaseURL is the prefix for
// generated payment link URLs.
func NewReconciler(store Store, c *cache.Cache, linkBaseURL string, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, cache: c, linkBaseURL: linkBaseURL, logger: logger}
}

// Reconcile marks the matching reservation paid and invalidates its cached
// views. A second delivery of the same confirmation is a harmless no-op.
func (r *Reconciler) Reconcile(ctx context.Context, paymentLinkID string) error {
	if paymentLinkID == "" {
		return fmt.Errorf("%w: empty payment link id", ErrUnknownPaymentLink)
	}

	res, err := r.store.FindReservationByPaymentLink(ctx, paymentLinkID)
	if errors.Is(err, database.ErrNotFound) {
		metrics.IncPaymentReconciled("unknown")
		return fmt.Errorf("%w: %s", ErrUnknownPaymentLink, paymentLinkID)
	}
	if err != nil {
		return fmt.Errorf("lookup payment link: %w", err)
	}

	changed, err := r.store.MarkPaid(ctx, res.ID)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}

	r.cache.Invalidate(ctx, cache.ReservationKey(res.ID), cache.CostKey(res.ID))

	if !changed {
		metrics.IncPaymentReconciled("duplicate")
		r.logger.Debug().
			Int64("reservation_id", res.ID).
			Str("payment_link_id", paymentLinkID).
			Msg("duplicate payment confirmation ignored")
		return nil
	}

	metrics.IncPaymentReconciled("paid")
	r.logger.Info().
		Int64("reservation_id", res.ID).
		Str("payment_link_id", paymentLinkID).
		Msg("reservation marked paid")
	return nil
}

// AssignPaymentLink generates and stores a payment link identifier and URL
// for the reservation.
func (r *Reconciler) AssignPaymentLink(ctx context.Context, reservationID int64) (string, string, error) {
	linkID := uuid.NewString()
	linkURL := fmt.Sprintf("%s/%s", r.linkBaseURL, linkID)
	if err := r.store.SetPaymentLink(ctx, reservationID, linkID, linkURL); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", "", fmt.Errorf("reservation %d: %w", reservationID, err)
		}
		return "", "", fmt.Errorf("set payment link: %w", err)
	}
	r.cache.Invalidate(ctx, cache.ReservationKey(reservationID))
	return linkID, linkURL, nil
}

// confirmationEnvelope is the provider payload shape; only the order id
// matters to the core.
type confirmationEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
	OrderID string `json:"order_id"`
}

// ParseConfirmation extracts the payment link identifier from a provider
// webhook payload. Both the nested object id and a flat order_id field are
// accepted.
func ParseConfirmation(payload []byte) (string, error) {
	var env confirmationEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("decode confirmation payload: %w", err)
	}
	if env.Data.Object.ID != "" {
		return env.Data.Object.ID, nil
	}
	if env.OrderID != "" {
		return env.OrderID, nil
	}
	return "", fmt.Errorf("confirmation payload carries no payment link id")
}
