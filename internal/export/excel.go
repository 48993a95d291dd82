// Package export produces the administrative reservations report.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"venuebook/internal/database"
	"venuebook/internal/models"
	"venuebook/internal/pricing"
)

// Store is the slice of persistence the report needs.
type Store interface {
	ListReservations(ctx context.Context) ([]models.Reservation, error)
	ListOccurrences(ctx context.Context, reservationID int64) ([]models.DateOccurrence, error)
	ListFees(ctx context.Context, reservationID int64) ([]models.Fee, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
}

var reportColumns = []string{
	"ID", "Event", "Status", "Paid", "Occurrences", "Approved", "Cost", "Created At",
}

// WriteReservationsReport renders every reservation with its computed cost
// into an xlsx workbook on w.
func WriteReservationsReport(ctx context.Context, store Store, w io.Writer) error {
	reservations, err := store.ListReservations(ctx)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Reservations"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range reportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(reportColumns), 1)
		_ = f.SetCellStyle(sheet, start, end, style)
	}

	for i := range reservations {
		res := &reservations[i]
		occurrences, err := store.ListOccurrences(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("list occurrences for %d: %w", res.ID, err)
		}
		fees, err := store.ListFees(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("list fees for %d: %w", res.ID, err)
		}
		category, err := store.GetCategory(ctx, res.CategoryID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("category %d: %w", res.CategoryID, err)
		}

		approved := 0
		for j := range occurrences {
			if occurrences[j].Status == models.StatusApproved {
				approved++
			}
		}
		cost := pricing.ComputeCost(res, occurrences, fees, category)

		row := []any{
			res.ID,
			res.EventName,
			string(res.Status),
			res.Paid,
			len(occurrences),
			approved,
			cost.String(),
			res.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
