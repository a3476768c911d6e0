package discount

// Set holds a product's rules split by trigger channel.
type Set struct {
	Bank []Rule `json:"bankDiscount"`
	Qty  []Rule `json:"qtyDiscount"`
}

// Empty reports whether the set has no rules.
func (s Set) Empty() bool {
	return len(s.Bank) == 0 && len(s.Qty) == 0
}

// Filter selects the rules eligible for a payment method and fulfillment type.
// Bank-transfer rules come first and only for bank transfer; quantity rules
// apply to every payment method. When onlyScope is set, rules with any other
// scope are skipped. Scopes compare case-insensitively.
func (s Set) Filter(payment PaymentMethod, f Fulfillment, onlyScope Scope) []Rule {
	onlyScope = onlyScope.Normalize()
	out := make([]Rule, 0, len(s.Bank)+len(s.Qty))
	pick := func(rules []Rule) {
		for _, r := range rules {
			if !r.AppliesTo(f) {
				continue
			}
			if onlyScope != "" && r.Scope.Normalize() != onlyScope {
				continue
			}
			out = append(out, r)
		}
	}
	if payment == BankTransfer {
		pick(s.Bank)
	}
	pick(s.Qty)
	return out
}

// Applied is one rule's contribution to a whole line.
type Applied struct {
	Label  string `json:"label"`
	Amount Money  `json:"amount"`
}

// Line is a cart line priced per unit.
type Line struct {
	UnitPrice Money
	Qty       int
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() Money {
	if l.Qty <= 0 || l.UnitPrice <= 0 {
		return 0
	}
	return l.UnitPrice * Money(l.Qty)
}

// Evaluate stacks every qualifying rule. Each rule is computed against the
// unit price, the running per-unit deduction never exceeds the unit price, and
// the per-unit amount is scaled by quantity. Rules that contribute nothing are
// omitted.
func Evaluate(line Line, rules []Rule) []Applied {
	subtotal := line.Subtotal()
	if subtotal == 0 {
		return nil
	}
	remaining := line.UnitPrice
	var out []Applied
	for _, r := range rules {
		if remaining <= 0 {
			break
		}
		if !r.Qualifies(line.Qty, subtotal) {
			continue
		}
		perUnit := Compute(r, line.UnitPrice)
		if perUnit > remaining {
			perUnit = remaining
		}
		if perUnit == 0 {
			continue
		}
		remaining -= perUnit
		out = append(out, Applied{Label: r.Label, Amount: perUnit * Money(line.Qty)})
	}
	return out
}

// Total sums applied amounts.
func Total(applied []Applied) Money {
	var total Money
	for _, a := range applied {
		total += a.Amount
	}
	return total
}
