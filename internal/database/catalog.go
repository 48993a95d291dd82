package database

import (
	"context"
	"database/sql"
	"errors"

	"venuebook/internal/models"
)

// GetCategory returns a pricing category by id.
func (db *DB) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	var cents int64
	err := db.QueryRowContext(ctx,
		`SELECT id, facility_id, name, price_cents, unit, flat FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.FacilityID, &c.Name, &cents, &c.Unit, &c.Flat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Price = models.Money(cents)
	return &c, nil
}

// CreateCategory inserts a pricing category.
func (db *DB) CreateCategory(ctx context.Context, c *models.Category) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO categories (facility_id, name, price_cents, unit, flat) VALUES (?, ?, ?, ?, ?)`,
		c.FacilityID, c.Name, c.Price.Cents(), c.Unit, c.Flat)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// GetFacility returns a facility by id.
func (db *DB) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	var f models.Facility
	err := db.QueryRowContext(ctx,
		`SELECT id, building_id, name, calendar_id, time_zone FROM facilities WHERE id = ?`, id,
	).Scan(&f.ID, &f.BuildingID, &f.Name, &f.CalendarID, &f.TimeZone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFacility inserts a facility.
func (db *DB) CreateFacility(ctx context.Context, f *models.Facility) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO facilities (building_id, name, calendar_id, time_zone) VALUES (?, ?, ?, ?)`,
		f.BuildingID, f.Name, f.CalendarID, f.TimeZone)
	if err != nil {
		return err
	}
	f.ID, err = res.LastInsertId()
	return err
}

// ListBuildingRecipients returns recipients who opted in to notifications for
// the given building.
func (db *DB) ListBuildingRecipients(ctx context.Context, buildingID int64) ([]models.Recipient, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.name, r.email
		FROM recipients r
		JOIN recipient_buildings rb ON rb.recipient_id = r.id
		WHERE rb.building_id = ? AND rb.notify = 1
		ORDER BY r.id`, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.ID, &r.Name, &r.Email); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRecipient inserts a recipient.
func (db *DB) CreateRecipient(ctx context.Context, r *models.Recipient) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO recipients (name, email) VALUES (?, ?)`, r.Name, r.Email)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

// SetRecipientBuildingPref records a recipient's opt-in flag for a building.
func (db *DB) SetRecipientBuildingPref(ctx context.Context, recipientID, buildingID int64, notify bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO recipient_buildings (recipient_id, building_id, notify)
		VALUES (?, ?, ?)
		ON CONFLICT(recipient_id, building_id) DO UPDATE SET notify = excluded.notify`,
		recipientID, buildingID, notify)
	return err
}
