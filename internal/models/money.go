package models

import "fmt"

// Money is an amount in integer minor units (cents). All cost arithmetic
// stays in int64 until formatting, so summing many occurrences never
// accumulates floating-point drift.
type Money int64

// Cents returns the raw minor-unit value.
func (m Money) Cents() int64 { return int64(m) }

// Add returns m + other.
func (m Money) Add(other Money) Money { return m + other }

// String formats the amount as a decimal with two fraction digits.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MoneyFromSeconds charges an hourly price for a duration given in seconds.
// The division happens once, after the multiplication, with half-up rounding
// on the remainder.
func MoneyFromSeconds(seconds int64, hourlyPrice Money) Money {
	total := seconds * int64(hourlyPrice)
	q := total / 3600
	r := total % 3600
	if r < 0 {
		r = -r
	}
	if r*2 >= 3600 {
		if total < 0 {
			q--
		} else {
			q++
		}
	}
	return Money(q)
}

// SumFees adds up the amounts of all fees.
func SumFees(fees []Fee) Money {
	var total Money
	for _, f := range fees {
		total += f.Amount
	}
	return total
}
