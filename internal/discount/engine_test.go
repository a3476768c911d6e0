package discount_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/discount"
)

func TestComputeRate(t *testing.T) {
	rule := discount.Rate("10%", decimal.NewFromInt(10))
	require.Equal(t, discount.Money(5_000), discount.Compute(rule, 50_000))

	odd := discount.Rate("3.5%", decimal.RequireFromString("3.5"))
	require.Equal(t, discount.Money(70), discount.Compute(odd, 1_990), "69.65 rounds half-up")
}

func TestComputeFixedFloorsAtZero(t *testing.T) {
	rule := discount.Fixed("big", 12_000)
	require.Equal(t, discount.Money(10_000), discount.Compute(rule, 10_000))
	require.Equal(t, discount.Money(0), discount.Compute(rule, 0))
	require.Equal(t, discount.Money(0), discount.Compute(discount.Fixed("neg", -5), 1_000))
}

func TestValidate(t *testing.T) {
	require.NoError(t, discount.Rate("ok", decimal.NewFromInt(100)).Validate())
	require.ErrorIs(t, discount.Rate("too much", decimal.NewFromInt(101)).Validate(), discount.ErrInvalidRule)
	require.ErrorIs(t, discount.Fixed("neg", -1).Validate(), discount.ErrInvalidRule)
	require.ErrorIs(t, discount.Rule{Kind: "BOGUS"}.Validate(), discount.ErrInvalidRule)
}

func TestQualifiesNeedsBothThresholds(t *testing.T) {
	rule := discount.Fixed("bulk", 500)
	rule.MinQty = 3
	rule.MinAmount = 20_000

	require.True(t, rule.Qualifies(3, 20_000))
	require.False(t, rule.Qualifies(2, 50_000))
	require.False(t, rule.Qualifies(5, 19_999))
}

func TestAppliesToScope(t *testing.T) {
	all := discount.Fixed("all", 100)
	pickup := discount.Fixed("pickup", 100)
	pickup.Scope = discount.ScopePickup
	blank := discount.Fixed("blank", 100)
	blank.Scope = ""

	require.True(t, all.AppliesTo(discount.Delivery))
	require.True(t, blank.AppliesTo(discount.Delivery))
	require.True(t, pickup.AppliesTo(discount.Pickup))
	require.False(t, pickup.AppliesTo(discount.Delivery))
}

func TestFormatWon(t *testing.T) {
	require.Equal(t, "0", discount.FormatWon(0))
	require.Equal(t, "999", discount.FormatWon(999))
	require.Equal(t, "1,000", discount.FormatWon(1_000))
	require.Equal(t, "1,234,567", discount.FormatWon(1_234_567))
	require.Equal(t, "-5,000", discount.FormatWon(-5_000))
	require.Equal(t, "계좌이체 -₩2,000", discount.Describe("계좌이체", 2_000))
}
