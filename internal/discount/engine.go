package discount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in won.
type Money = int64

// Kind distinguishes percentage and absolute discounts.
type Kind string

const (
	KindRate  Kind = "RATE"
	KindFixed Kind = "FIXED"
)

// Scope restricts where a rule applies.
type Scope string

const (
	ScopeAll    Scope = "ALL"
	ScopePickup Scope = "PICKUP"
)

// Normalize upper-cases the scope and trims surrounding space.
func (s Scope) Normalize() Scope {
	return Scope(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Fulfillment is how the order reaches the customer.
type Fulfillment string

const (
	Pickup   Fulfillment = "PICKUP"
	Delivery Fulfillment = "DELIVERY"
)

// PaymentMethod selects which discount channels are eligible.
type PaymentMethod string

const (
	BankTransfer PaymentMethod = "BANK_TRANSFER"
	Card         PaymentMethod = "CARD"
)

var (
	// ErrInvalidRule is returned when a rule carries an out-of-range value.
	ErrInvalidRule = errors.New("discount: invalid rule")

	hundred = decimal.NewFromInt(100)
)

// Rule is a single discount. RATE rules use Percent (0-100); FIXED rules use Amount.
type Rule struct {
	Label     string          `json:"label"`
	Kind      Kind            `json:"kind"`
	Percent   decimal.Decimal `json:"percent"`
	Amount    Money           `json:"amount"`
	MinAmount Money           `json:"minAmount"`
	MinQty    int             `json:"minQty"`
	Scope     Scope           `json:"applyScope"`
}

// Rate builds a percentage rule.
func Rate(label string, percent decimal.Decimal) Rule {
	return Rule{Label: label, Kind: KindRate, Percent: percent, Scope: ScopeAll}
}

// Fixed builds an absolute rule.
func Fixed(label string, amount Money) Rule {
	return Rule{Label: label, Kind: KindFixed, Amount: amount, Scope: ScopeAll}
}

// Validate ensures the rule value is usable.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindRate:
		if r.Percent.IsNegative() || r.Percent.GreaterThan(hundred) {
			return fmt.Errorf("%w: rate %s out of range", ErrInvalidRule, r.Percent)
		}
	case KindFixed:
		if r.Amount < 0 {
			return fmt.Errorf("%w: negative amount %d", ErrInvalidRule, r.Amount)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}
	if r.MinAmount < 0 || r.MinQty < 0 {
		return fmt.Errorf("%w: negative threshold", ErrInvalidRule)
	}
	return nil
}

// Qualifies reports whether a line meets both thresholds.
func (r Rule) Qualifies(qty int, lineSubtotal Money) bool {
	return qty >= r.MinQty && lineSubtotal >= r.MinAmount
}

// AppliesTo reports whether the rule's scope admits the fulfillment type.
// An empty scope behaves as ALL.
func (r Rule) AppliesTo(f Fulfillment) bool {
	switch r.Scope.Normalize() {
	case "", ScopeAll:
		return true
	case ScopePickup:
		return f == Pickup
	default:
		return false
	}
}

// Compute returns the amount rule deducts from base, always within [0, base].
// RATE amounts are rounded half-up to the won.
func Compute(r Rule, base Money) Money {
	if base <= 0 {
		return 0
	}
	var amount Money
	switch r.Kind {
	case KindRate:
		if !r.Percent.IsPositive() {
			return 0
		}
		amount = decimal.NewFromInt(base).Mul(r.Percent).Div(hundred).Round(0).IntPart()
	case KindFixed:
		amount = r.Amount
	default:
		return 0
	}
	if amount > base {
		amount = base
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Describe renders a discount line the way receipts show it.
func Describe(label string, amount Money) string {
	return fmt.Sprintf("%s -₩%s", label, FormatWon(amount))
}

// FormatWon groups digits by thousands.
func FormatWon(amount Money) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
