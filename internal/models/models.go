package models

import "time"

// Status is the approval state of a reservation or one of its date
// occurrences. Reservations and occurrences carry independent statuses.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusCanceled Status = "canceled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
// Canceled is the only terminal state; denied occurrences may still be
// re-approved by an administrator (source-system laxness, kept on purpose).
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Reservation is a request to rent a facility on one or more dates.
// Status is the aggregate approval state, distinct from the per-occurrence
// statuses.
type Reservation struct {
	ID             int64      `json:"id"`
	RequesterID    int64      `json:"requester_id"`
	FacilityID     int64      `json:"facility_id"`
	CategoryID     int64      `json:"category_id"`
	EventName      string     `json:"event_name"`
	ContactName    string     `json:"contact_name"`
	ContactEmail   string     `json:"contact_email"`
	ContactPhone   string     `json:"contact_phone"`
	Status         Status     `json:"status"`
	Paid           bool       `json:"paid"`
	CostOverride   *Money     `json:"cost_override,omitempty"`
	PaymentLinkID  string     `json:"payment_link_id,omitempty"`
	PaymentLinkURL string     `json:"payment_link_url,omitempty"`
	Details        string     `json:"details,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DateOccurrence is one scheduled time span within a reservation.
// CalendarEventID is the back-reference to the mirrored external calendar
// event; it is empty while the occurrence is unsynced and must only be set
// while the occurrence is approved.
type DateOccurrence struct {
	ID              int64     `json:"id"`
	ReservationID   int64     `json:"reservation_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          Status    `json:"status"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DurationSeconds returns the occurrence length in whole seconds, so
// sub-minute spans still count toward hourly pricing.
func (o *DateOccurrence) DurationSeconds() int64 {
	return int64(o.EndTime.Sub(o.StartTime) / time.Second)
}

// Synced reports whether the occurrence carries a calendar back-reference.
func (o *DateOccurrence) Synced() bool {
	return o.CalendarEventID != ""
}

// Category is a pricing tier for a facility. Price is per hour unless Flat
// is set, in which case it is a single fixed amount regardless of duration.
type Category struct {
	ID         int64  `json:"id"`
	FacilityID int64  `json:"facility_id"`
	Name       string `json:"name"`
	Price      Money  `json:"price"`
	Unit       string `json:"unit"`
	Flat       bool   `json:"flat"`
}

// Fee is an additional charge attached to a reservation.
type Fee struct {
	ID            int64  `json:"id"`
	ReservationID int64  `json:"reservation_id"`
	Amount        Money  `json:"amount"`
	Type          string `json:"type"`
}

// Facility is a bookable physical space, grouped under a building.
// CalendarID identifies the external calendar that mirrors its approved
// occurrences; TimeZone is the IANA zone used for event times.
type Facility struct {
	ID         int64  `json:"id"`
	BuildingID int64  `json:"building_id"`
	Name       string `json:"name"`
	CalendarID string `json:"calendar_id"`
	TimeZone   string `json:"time_zone"`
}

// Recipient is a user who may opt in to creation notifications per building.
type Recipient struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
