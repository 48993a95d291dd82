package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"venuebook/internal/models"
)

func occ(status models.Status, hours float64) models.DateOccurrence {
	start := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	return models.DateOccurrence{
		StartTime: start,
		EndTime:   start.Add(time.Duration(hours * float64(time.Hour))),
		Status:    status,
	}
}

func TestComputeCostHourly(t *testing.T) {
	res := &models.Reservation{}
	category := &models.Category{Price: 2000, Unit: "hour"} // 20.00/hour
	occurrences := []models.DateOccurrence{
		occ(models.StatusApproved, 2),
		occ(models.StatusApproved, 1.5),
	}
	fees := []models.Fee{{Amount: 1500, Type: "cleaning"}} // 15.00

	// 40.00 + 30.00 + 15.00
	got := ComputeCost(res, occurrences, fees, category)
	assert.Equal(t, models.Money(8500), got)
	assert.Equal(t, "85.00", got.String())
}

func TestComputeCostCountsSubMinuteSpans(t *testing.T) {
	res := &models.Reservation{}
	category := &models.Category{Price: 2000, Unit: "hour"}
	occurrences := []models.DateOccurrence{
		occ(models.StatusApproved, 1.525), // 1h 31m 30s
	}

	// 5490s at 20.00/hour = 30.50; the trailing 90 seconds are charged.
	got := ComputeCost(res, occurrences, nil, category)
	assert.Equal(t, models.Money(3050), got)
}

func TestComputeCostSkipsUnapproved(t *testing.T) {
	res := &models.Reservation{}
	category := &models.Category{Price: 2000}
	occurrences := []models.DateOccurrence{
		occ(models.StatusApproved, 2),
		occ(models.StatusPending, 4),
		occ(models.StatusDenied, 4),
		occ(models.StatusCanceled, 4),
	}
	assert.Equal(t, models.Money(4000), ComputeCost(res, occurrences, nil, category))
}

func TestComputeCostOverrideIgnoresFees(t *testing.T) {
	override := models.Money(5000)
	res := &models.Reservation{CostOverride: &override}
	category := &models.Category{Price: 2000}
	occurrences := []models.DateOccurrence{occ(models.StatusApproved, 8)}
	fees := []models.Fee{{Amount: 1500}}

	assert.Equal(t, models.Money(5000), ComputeCost(res, occurrences, fees, category))
}

func TestComputeCostZeroOverride(t *testing.T) {
	override := models.Money(0)
	res := &models.Reservation{CostOverride: &override}
	category := &models.Category{Price: 2000}
	occurrences := []models.DateOccurrence{occ(models.StatusApproved, 8)}

	// An explicit zero override is a waiver, not an unset value.
	assert.Equal(t, models.Money(0), ComputeCost(res, occurrences, nil, category))
}

func TestComputeCostFlatRate(t *testing.T) {
	res := &models.Reservation{}
	category := &models.Category{Price: 10000, Flat: true}
	occurrences := []models.DateOccurrence{
		occ(models.StatusApproved, 2),
		occ(models.StatusApproved, 6),
	}
	fees := []models.Fee{{Amount: 2500}}

	// Flat price charged once regardless of duration, fees on top.
	assert.Equal(t, models.Money(12500), ComputeCost(res, occurrences, fees, category))
}

func TestComputeCostNoApprovedOccurrences(t *testing.T) {
	res := &models.Reservation{}
	category := &models.Category{Price: 2000}
	occurrences := []models.DateOccurrence{occ(models.StatusPending, 3)}
	fees := []models.Fee{{Amount: 1500}}

	assert.Equal(t, models.Money(1500), ComputeCost(res, occurrences, fees, category))
}

func TestComputeCostMissingCategory(t *testing.T) {
	res := &models.Reservation{}
	fees := []models.Fee{{Amount: 700}}
	assert.Equal(t, models.Money(700), ComputeCost(res, nil, fees, nil))
}
