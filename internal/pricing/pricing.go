// Package pricing computes the amount owed for a reservation.
package pricing

import (
	"venuebook/internal/models"
)

// ComputeCost returns the total owed for a reservation.
//
// Precedence:
//  1. A manual cost override replaces the computed amount verbatim; fees are
//     not added on top of an override.
//  2. A flat-rate category charges its price once plus all fees.
//  3. Otherwise each approved occurrence is billed at the category's hourly
//     price for its duration, and fees are added to the sum.
//
// A missing category contributes nothing; only the fees are charged.
//
// All arithmetic is in integer minor units; rounding to cents happens once,
// inside the per-occurrence second/hour conversion. Pure function, safe to
// call concurrently.
func ComputeCost(res *models.Reservation, occurrences []models.DateOccurrence, fees []models.Fee, category *models.Category) models.Money {
	if res.CostOverride != nil {
		return *res.CostOverride
	}

	feeTotal := models.SumFees(fees)

	if category == nil {
		return feeTotal
	}
	if category.Flat {
		return category.Price.Add(feeTotal)
	}

	var total models.Money
	for i := range occurrences {
		occ := &occurrences[i]
		if occ.Status != models.StatusApproved {
			continue
		}
		total += models.MoneyFromSeconds(occ.DurationSeconds(), category.Price)
	}
	return total.Add(feeTotal)
}
