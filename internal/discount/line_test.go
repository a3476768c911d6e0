package discount_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/discount"
)

func stackingSet() discount.Set {
	qty := discount.Rate("3개 이상 10%", decimal.NewFromInt(10))
	qty.MinQty = 3
	bank := discount.Fixed("계좌이체 2,000원", 2_000)
	bank.MinQty = 3
	return discount.Set{Bank: []discount.Rule{bank}, Qty: []discount.Rule{qty}}
}

func TestEvaluateStacksPerUnit(t *testing.T) {
	set := stackingSet()
	rules := set.Filter(discount.BankTransfer, discount.Delivery, "")
	require.Len(t, rules, 2)

	applied := discount.Evaluate(discount.Line{UnitPrice: 10_000, Qty: 5}, rules)
	require.Equal(t, []discount.Applied{
		{Label: "계좌이체 2,000원", Amount: 10_000},
		{Label: "3개 이상 10%", Amount: 5_000},
	}, applied)
	require.Equal(t, discount.Money(15_000), discount.Total(applied))
}

func TestEvaluateWholeLineAlternative(t *testing.T) {
	// Applying the same rules once to the line subtotal instead of per unit
	// yields the flat reading of a FIXED rule.
	set := stackingSet()
	var total discount.Money
	for _, r := range set.Filter(discount.BankTransfer, discount.Delivery, "") {
		total += discount.Compute(r, 50_000)
	}
	require.Equal(t, discount.Money(7_000), total)
}

func TestFilterSkipsBankChannelForCard(t *testing.T) {
	set := stackingSet()
	rules := set.Filter(discount.Card, discount.Delivery, "")
	require.Len(t, rules, 1)
	require.Equal(t, discount.KindRate, rules[0].Kind)

	applied := discount.Evaluate(discount.Line{UnitPrice: 10_000, Qty: 5}, rules)
	require.Equal(t, discount.Money(5_000), discount.Total(applied))
}

func TestPickupScopedRuleNeverAppliesToDelivery(t *testing.T) {
	pickupRate := discount.Rate("픽업 5%", decimal.NewFromInt(5))
	pickupRate.Scope = discount.ScopePickup
	pickupFixed := discount.Fixed("픽업 계좌", 300)
	pickupFixed.Scope = discount.ScopePickup
	set := discount.Set{Bank: []discount.Rule{pickupFixed}, Qty: []discount.Rule{pickupRate}}

	for _, qty := range []int{1, 2, 10, 100} {
		for _, method := range []discount.PaymentMethod{discount.BankTransfer, discount.Card} {
			rules := set.Filter(method, discount.Delivery, "")
			applied := discount.Evaluate(discount.Line{UnitPrice: 4_500, Qty: qty}, rules)
			require.Zero(t, discount.Total(applied))
		}
	}

	onlyPickup := set.Filter(discount.BankTransfer, discount.Pickup, discount.ScopePickup)
	require.Len(t, onlyPickup, 2)
}

func TestFilterScopeIgnoresCase(t *testing.T) {
	lower := discount.Rate("픽업 5%", decimal.NewFromInt(5))
	lower.Scope = "pickup"
	padded := discount.Fixed("픽업 계좌", 300)
	padded.Scope = " Pickup "
	set := discount.Set{Bank: []discount.Rule{padded}, Qty: []discount.Rule{lower}}

	require.Len(t, set.Filter(discount.BankTransfer, discount.Pickup, discount.ScopePickup), 2)
	require.Len(t, set.Filter(discount.BankTransfer, discount.Pickup, "pickup"), 2)
	require.Empty(t, set.Filter(discount.BankTransfer, discount.Pickup, discount.ScopeAll))
	require.Empty(t, set.Filter(discount.BankTransfer, discount.Delivery, ""))
}

func TestEvaluateNeverDrivesUnitBelowZero(t *testing.T) {
	rules := []discount.Rule{
		discount.Fixed("800 off", 800),
		discount.Rate("half", decimal.NewFromInt(50)),
		discount.Fixed("extra", 100),
	}
	applied := discount.Evaluate(discount.Line{UnitPrice: 1_000, Qty: 3}, rules)
	require.Equal(t, []discount.Applied{
		{Label: "800 off", Amount: 2_400},
		{Label: "half", Amount: 600},
	}, applied)
	require.Equal(t, discount.Money(3_000), discount.Total(applied))
}

func TestEvaluateSkipsUnqualifiedAndEmptyLines(t *testing.T) {
	rule := discount.Fixed("bulk", 500)
	rule.MinAmount = 10_000

	require.Empty(t, discount.Evaluate(discount.Line{UnitPrice: 3_000, Qty: 3}, []discount.Rule{rule}))
	require.Len(t, discount.Evaluate(discount.Line{UnitPrice: 3_000, Qty: 4}, []discount.Rule{rule}), 1)
	require.Nil(t, discount.Evaluate(discount.Line{UnitPrice: 3_000, Qty: 0}, []discount.Rule{rule}))
}
