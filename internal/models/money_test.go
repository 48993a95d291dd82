package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoneyString(t *testing.T) {
	tests := []struct {
		cents Money
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{100, "1.00"},
		{8500, "85.00"},
		{123456, "1234.56"},
		{-1550, "-15.50"},
		{-5, "-0.05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cents.String())
	}
}

func TestMoneyFromSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds int64
		hourly  Money
		want    Money
	}{
		{"two hours at 20.00", 7200, 2000, 4000},
		{"ninety minutes at 20.00", 5400, 2000, 3000},
		{"zero duration", 0, 2000, 0},
		{"ninety seconds at 20.00", 90, 2000, 50},
		{"one second at 1.00", 1, 100, 0},       // 100/3600 rounds down from 0.03
		{"one minute at 1.00", 60, 100, 2},      // 6000/3600 rounds up from 1.67
		{"exact half rounds up", 1800, 1, 1},    // 1800/3600 = 0.5
		{"negative price", 3600, -2000, -2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MoneyFromSeconds(tt.seconds, tt.hourly))
		})
	}
}

func TestSumFees(t *testing.T) {
	assert.Equal(t, Money(0), SumFees(nil))
	fees := []Fee{
		{Amount: 1500, Type: "cleaning"},
		{Amount: 2500, Type: "deposit"},
	}
	assert.Equal(t, Money(4000), SumFees(fees))
}
