package billing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/enrollment-engine/billing"
)

// =============================================================================
// PAYMENT STATUS DERIVATION
// =============================================================================

func TestDerivePaymentStatus_AllCases(t *testing.T) {
	tests := []struct {
		name  string
		paid  string
		total string
		want  billing.PaymentStatus
	}{
		{"nothing paid", "0", "1000.00", billing.PaymentUnpaid},
		{"partially paid", "400.00", "1000.00", billing.PaymentPartial},
		{"one cent short", "999.99", "1000.00", billing.PaymentPartial},
		{"settled", "1000.00", "1000.00", billing.PaymentPaid},
		{"zero-total invoice is never paid", "0", "0", billing.PaymentUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.DerivePaymentStatus(
				billing.MustParseMoney(tt.paid), billing.MustParseMoney(tt.total))
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// MONEY
// =============================================================================

func TestMoney_String_AlwaysTwoDecimals(t *testing.T) {
	assert.Equal(t, "500.00", billing.NewMoney(500).String())
	assert.Equal(t, "0.50", billing.MustParseMoney("0.5").String())
	assert.Equal(t, "-3.10", billing.MustParseMoney("-3.1").String())
}

func TestMoney_Percent_RoundsToMinorUnit(t *testing.T) {
	// 33% of 1000.00 is exactly 330.00
	got := billing.NewMoney(1000).Percent(decimal.NewFromInt(33))
	assert.Equal(t, "330.00", got.String())

	// 33.33% of 100.00 rounds to 33.33
	got = billing.NewMoney(100).Percent(decimal.RequireFromString("33.33"))
	assert.Equal(t, "33.33", got.String())
}

func TestMoney_Arithmetic(t *testing.T) {
	a := billing.MustParseMoney("10.50")
	b := billing.MustParseMoney("3.25")

	assert.Equal(t, "13.75", a.Add(b).String())
	assert.Equal(t, "7.25", a.Sub(b).String())
	assert.True(t, a.GreaterThan(b))
	assert.True(t, b.LessThan(a))
	assert.True(t, a.Sub(a).IsZero())
	assert.True(t, b.Sub(a).IsNegative())
}

func TestWorkflowStatus_Terminal(t *testing.T) {
	assert.False(t, billing.WorkflowDraft.Terminal())
	assert.False(t, billing.WorkflowPendingFinance.Terminal())
	assert.True(t, billing.WorkflowApproved.Terminal())
	assert.True(t, billing.WorkflowRejected.Terminal())
}
