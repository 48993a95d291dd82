// Package notify fans out reservation notifications to recipients who
// opted in for a facility's building.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"venuebook/internal/metrics"
	"venuebook/internal/models"
)

// ErrExternal marks a failure of the message-sending endpoint. The
// reservation that triggered the notification is already committed and is
// never undone because of it.
var ErrExternal = errors.New("notification dispatch error")

// Message is one outgoing notification.
type Message struct {
	Recipients []string
	Subject    string
	Body       string
}

// Dispatcher delivers a message to the external sending endpoint.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Store is the slice of persistence the fan-out needs.
type Store interface {
	ListBuildingRecipients(ctx context.Context, buildingID int64) ([]models.Recipient, error)
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
}

// FanOut selects interested recipients and dispatches one templated message.
type FanOut struct {
	store      Store
	dispatcher Dispatcher
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

// NewFanOut constructs the fan-out. ratePerSec bounds dispatches; zero or
// negative disables the limit.
func NewFanOut(store Store, dispatcher Dispatcher, ratePerSec float64, logger *zerolog.Logger) *FanOut {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &FanOut{store: store, dispatcher: dispatcher, limiter: limiter, logger: logger}
}

// NotifyCreated announces a new reservation to the building's subscribers.
// An empty recipient set means no dispatch at all; otherwise exactly one
// message goes out with every interested address.
func (f *FanOut) NotifyCreated(ctx context.Context, res *models.Reservation) error {
	facility, err := f.store.GetFacility(ctx, res.FacilityID)
	if err != nil {
		return fmt.Errorf("get facility: %w", err)
	}

	recipients, err := f.store.ListBuildingRecipients(ctx, facility.BuildingID)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	addresses := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.Email != "" {
			addresses = append(addresses, r.Email)
		}
	}
	if len(addresses) == 0 {
		f.logger.Debug().
			Int64("reservation_id", res.ID).
			Int64("building_id", facility.BuildingID).
			Msg("no notification recipients for building")
		metrics.IncNotificationSent("skipped")
		return nil
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	msg := buildCreatedMessage(res, facility, addresses)
	if err := f.dispatcher.Send(ctx, msg); err != nil {
		metrics.IncNotificationSent("error")
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}

	metrics.IncNotificationSent("ok")
	f.logger.Info().
		Int64("reservation_id", res.ID).
		Int("recipients", len(addresses)).
		Msg("reservation notification dispatched")
	return nil
}

func buildCreatedMessage(res *models.Reservation, facility *models.Facility, addresses []string) Message {
	subject := fmt.Sprintf("New reservation request: %s at %s", res.EventName, facility.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "A new reservation request was submitted.\n\n")
	fmt.Fprintf(&b, "Event:    %s\n", res.EventName)
	fmt.Fprintf(&b, "Facility: %s\n", facility.Name)
	if res.ContactName != "" {
		fmt.Fprintf(&b, "Contact:  %s", res.ContactName)
		if res.ContactEmail != "" {
			fmt.Fprintf(&b, " <%s>", res.ContactEmail)
		}
		b.WriteString("\n")
	}
	if res.Details != "" {
		fmt.Fprintf(&b, "\n%s\n", res.Details)
	}

	return Message{
		Recipients: addresses,
		Subject:    subject,
		Body:       b.String(),
	}
}
