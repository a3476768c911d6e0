package shipping

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrZipRuleFeeUnset marks a matching ZIP rule that carries no fee. The rule
// still decides the fee (0), but the policy is misconfigured.
var ErrZipRuleFeeUnset = errors.New("zip rule has no fee configured")

// Category names the rule category that decided a fee.
type Category string

const (
	CategoryZipMatch       Category = "zip_match"
	CategoryFreeOverAmount Category = "free_over_amount"
	CategoryDefaultFee     Category = "default_fee"
	CategoryNoRule         Category = "no_rule"
	CategoryServerDefault  Category = "server_default"
	CategoryPickup         Category = "pickup"
	CategoryUnavailable    Category = "policy_unavailable"
)

// Resolution is the outcome of a fee lookup.
type Resolution struct {
	Fee      int64    `json:"fee"`
	Category Category `json:"category"`
	RuleID   int64    `json:"ruleId,omitempty"`
	Label    string   `json:"label,omitempty"`
	Warnings []error  `json:"-"`
}

// Resolve picks the delivery fee for subtotal and zip from the policies active
// at now. Exactly one category decides, checked in order: ZIP match, free over
// amount, default fee. With active policies but no matching rule the fee is 0.
// With no active policy at all the server's fee stands rather than 0, so a
// lapsed or missing policy feed never turns delivery free.
func Resolve(subtotal int64, zip string, policies []Policy, serverFee int64, now time.Time) Resolution {
	rules, anyActive := activeRules(policies, now)
	if !anyActive {
		return Resolution{Fee: max(serverFee, 0), Category: CategoryServerDefault}
	}

	if dest := NormalizeZip(zip); dest != "" {
		for _, r := range rules {
			if r.Type != RuleZipMatch || !zipMatches(r.ZipPrefix, dest) {
				continue
			}
			res := Resolution{Category: CategoryZipMatch, RuleID: r.ID, Label: r.Label}
			switch {
			case r.FreeOverAmount != nil && subtotal >= *r.FreeOverAmount:
				res.Fee = 0
			case r.Fee == nil:
				res.Warnings = append(res.Warnings, fmt.Errorf("%w: rule %d", ErrZipRuleFeeUnset, r.ID))
			default:
				res.Fee = max(*r.Fee, 0)
			}
			return res
		}
	}

	for _, r := range rules {
		if r.Type == RuleFreeOverAmount && r.FreeOverAmount != nil && subtotal >= *r.FreeOverAmount {
			return Resolution{Fee: 0, Category: CategoryFreeOverAmount, RuleID: r.ID, Label: r.Label}
		}
	}

	for _, r := range rules {
		if r.Type == RuleDefaultFee && r.Fee != nil {
			return Resolution{Fee: max(*r.Fee, 0), Category: CategoryDefaultFee, RuleID: r.ID, Label: r.Label}
		}
	}

	return Resolution{Fee: 0, Category: CategoryNoRule}
}

// activeRules flattens the active ALL-scope rules of policies active at now, in
// order, and reports whether any policy was active at all.
func activeRules(policies []Policy, now time.Time) (out []Rule, anyActive bool) {
	for _, p := range policies {
		if !p.ActiveAt(now) {
			continue
		}
		anyActive = true
		for _, r := range p.Rules {
			if r.Active && r.Scope == ScopeAll {
				out = append(out, r)
			}
		}
	}
	return out, anyActive
}

// zipMatches compares the rule prefix with the destination's first five digits.
// Prefixes shorter than five digits match as a leading prefix.
func zipMatches(prefix, dest string) bool {
	p := NormalizeZip(prefix)
	if p == "" {
		return false
	}
	return strings.HasPrefix(dest, p)
}
