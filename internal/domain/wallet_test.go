package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFitsMoneyScale(t *testing.T) {
	for in, want := range map[string]bool{
		"100":    true,
		"125.50": true,
		"2.500":  true,
		"0.001":  false,
		"1.005":  false,
	} {
		assert.Equal(t, want, FitsMoneyScale(decimal.RequireFromString(in)), in)
	}
}
