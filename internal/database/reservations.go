package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/models"
)

const reservationColumns = `id, requester_id, facility_id, category_id, event_name,
	contact_name, contact_email, contact_phone, status, paid,
	cost_override_cents, payment_link_id, payment_link_url, details,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var status string
	var override sql.NullInt64
	var linkID, linkURL sql.NullString
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.FacilityID, &r.CategoryID, &r.EventName,
		&r.ContactName, &r.ContactEmail, &r.ContactPhone, &status, &r.Paid,
		&override, &linkID, &linkURL, &r.Details,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	if override.Valid {
		m := models.Money(override.Int64)
		r.CostOverride = &m
	}
	if linkID.Valid {
		r.PaymentLinkID = linkID.String
	}
	if linkURL.Valid {
		r.PaymentLinkURL = linkURL.String
	}
	return &r, nil
}

func scanOccurrence(row rowScanner) (*models.DateOccurrence, error) {
	var o models.DateOccurrence
	var status string
	err := row.Scan(
		&o.ID, &o.ReservationID, &o.StartTime, &o.EndTime,
		&status, &o.CalendarEventID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = models.Status(status)
	return &o, nil
}

// CreateReservation inserts the reservation together with its occurrences and
// fees in one transaction. A reservation is never created without at least
// one occurrence.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation, occurrences []models.DateOccurrence, fees []models.Fee) error {
	if len(occurrences) == 0 {
		return fmt.Errorf("reservation requires at least one occurrence")
	}
	if r.Status == "" {
		r.Status = models.StatusPending
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		var override sql.NullInt64
		if r.CostOverride != nil {
			override = sql.NullInt64{Int64: r.CostOverride.Cents(), Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (
				requester_id, facility_id, category_id, event_name,
				contact_name, contact_email, contact_phone, status, paid,
				cost_override_cents, payment_link_id, payment_link_url, details,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RequesterID, r.FacilityID, r.CategoryID, r.EventName,
			r.ContactName, r.ContactEmail, r.ContactPhone, string(r.Status), r.Paid,
			override, nullIfEmpty(r.PaymentLinkID), nullIfEmpty(r.PaymentLinkURL), r.Details,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		r.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		r.CreatedAt, r.UpdatedAt = now, now

		for i := range occurrences {
			occ := &occurrences[i]
			occ.ReservationID = r.ID
			if occ.Status == "" {
				occ.Status = models.StatusPending
			}
			ins, err := tx.ExecContext(ctx, `
				INSERT INTO date_occurrences (reservation_id, start_time, end_time, status, calendar_event_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.ID, occ.StartTime, occ.EndTime, string(occ.Status), occ.CalendarEventID, now, now,
			)
			if err != nil {
				return fmt.Errorf("insert occurrence: %w", err)
			}
			if occ.ID, err = ins.LastInsertId(); err != nil {
				return err
			}
		}

		for i := range fees {
			fee := &fees[i]
			fee.ReservationID = r.ID
			ins, err := tx.ExecContext(ctx,
				`INSERT INTO fees (reservation_id, amount_cents, fee_type, created_at) VALUES (?, ?, ?, ?)`,
				r.ID, fee.Amount.Cents(), fee.Type, now,
			)
			if err != nil {
				return fmt.Errorf("insert fee: %w", err)
			}
			if fee.ID, err = ins.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// GetOccurrence returns a single date occurrence by id.
func (db *DB) GetOccurrence(ctx context.Context, id int64) (*models.DateOccurrence, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, reservation_id, start_time, end_time, status, calendar_event_id, created_at, updated_at
		FROM date_occurrences WHERE id = ?`, id)
	o, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// ListOccurrences returns all occurrences of a reservation ordered by start time.
func (db *DB) ListOccurrences(ctx context.Context, reservationID int64) ([]models.DateOccurrence, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reservation_id, start_time, end_time, status, calendar_event_id, created_at, updated_at
		FROM date_occurrences WHERE reservation_id = ? ORDER BY start_time`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DateOccurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListFees returns all fees of a reservation.
func (db *DB) ListFees(ctx context.Context, reservationID int64) ([]models.Fee, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, reservation_id, amount_cents, fee_type FROM fees WHERE reservation_id = ? ORDER BY id`,
		reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Fee
	for rows.Next() {
		var f models.Fee
		var cents int64
		if err := rows.Scan(&f.ID, &f.ReservationID, &cents, &f.Type); err != nil {
			return nil, err
		}
		f.Amount = models.Money(cents)
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateOccurrenceStatus sets the status of one occurrence.
func (db *DB) UpdateOccurrenceStatus(ctx context.Context, id int64, status models.Status) error {
	res, err := db.ExecContext(ctx,
		`UPDATE date_occurrences SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateOccurrenceStatusBulk sets the status of all listed occurrences in one
// transaction; either every row changes or none do.
func (db *DB) UpdateOccurrenceStatusBulk(ctx context.Context, ids []int64, status models.Status) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		for _, id := range ids {
			res, err := tx.ExecContext(ctx,
				`UPDATE date_occurrences SET status = ?, updated_at = ? WHERE id = ?`,
				string(status), now, id)
			if err != nil {
				return err
			}
			if err := requireRow(res); err != nil {
				return fmt.Errorf("occurrence %d: %w", id, err)
			}
		}
		return nil
	})
}

// UpdateReservationStatus sets the aggregate status of a reservation.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, status models.Status) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetOccurrenceCalendarEvent stores the external calendar back-reference.
func (db *DB) SetOccurrenceCalendarEvent(ctx context.Context, id int64, eventID string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE date_occurrences SET calendar_event_id = ?, updated_at = ? WHERE id = ?`,
		eventID, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteOccurrence removes one occurrence. Sibling occurrences and the parent
// reservation are left untouched.
func (db *DB) DeleteOccurrence(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM date_occurrences WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteReservation removes the reservation and, in the same transaction, all
// of its occurrences and fees.
func (db *DB) DeleteReservation(ctx context.Context, id int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM date_occurrences WHERE reservation_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fees WHERE reservation_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// FindReservationByPaymentLink returns the reservation whose stored payment
// link identifier matches.
func (db *DB) FindReservationByPaymentLink(ctx context.Context, paymentLinkID string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE payment_link_id = ?`, paymentLinkID)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// SetPaymentLink stores the payment link id and URL on a reservation.
func (db *DB) SetPaymentLink(ctx context.Context, id int64, linkID, linkURL string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET payment_link_id = ?, payment_link_url = ?, updated_at = ? WHERE id = ?`,
		linkID, linkURL, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkPaid flips the paid flag. Returns true when this call changed the row,
// false when the reservation was already paid (duplicate webhook delivery).
func (db *DB) MarkPaid(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET paid = 1, updated_at = ? WHERE id = ? AND paid = 0`,
		time.Now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListReservations returns all reservations ordered by creation time, newest
// first. Used by the report export.
func (db *DB) ListReservations(ctx context.Context) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
