package shipping

import (
	"strings"
	"time"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
)

// RuleType identifies the category a shipping rule belongs to.
type RuleType string

const (
	RuleZipMatch       RuleType = "ZIP_MATCH"
	RuleFreeOverAmount RuleType = "FREE_OVER_AMOUNT"
	RuleDefaultFee     RuleType = "DEFAULT_FEE"
)

// Scope restricts a rule to every order or pickup orders only.
type Scope string

const (
	ScopeAll    Scope = "ALL"
	ScopePickup Scope = "PICKUP"
)

// Rule is one fee rule inside a policy. Fee and FreeOverAmount are nil when unset.
type Rule struct {
	ID             int64    `json:"id"`
	Type           RuleType `json:"type"`
	Label          string   `json:"label"`
	ZipPrefix      string   `json:"zipPrefix,omitempty"`
	Fee            *int64   `json:"fee,omitempty"`
	FreeOverAmount *int64   `json:"freeOverAmount,omitempty"`
	Active         bool     `json:"active"`
	Scope          Scope    `json:"applyScope"`
}

// Policy groups rules under an activation window.
type Policy struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
	Active  bool      `json:"active"`
	Rules   []Rule    `json:"rules"`
}

// ActiveAt reports whether the policy is switched on and now falls in [StartAt, EndAt).
// A zero bound is open.
func (p Policy) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if !p.StartAt.IsZero() && now.Before(p.StartAt) {
		return false
	}
	if !p.EndAt.IsZero() && !now.Before(p.EndAt) {
		return false
	}
	return true
}

// FromRows converts backend policy rows. Rule types the resolver does not know
// are kept with their raw type and never match.
func FromRows(rows []backend.ShippingPolicyRow) []Policy {
	out := make([]Policy, 0, len(rows))
	for _, row := range rows {
		p := Policy{
			ID:      row.ID,
			Name:    row.Name,
			StartAt: row.StartAt.Time,
			EndAt:   row.EndAt.Time,
			Active:  row.Active,
			Rules:   make([]Rule, 0, len(row.Rules)),
		}
		for _, r := range row.Rules {
			p.Rules = append(p.Rules, Rule{
				ID:             r.ID,
				Type:           normalizeType(r.Type),
				Label:          r.Label,
				ZipPrefix:      r.ZipPrefix,
				Fee:            wonPtr(r.Fee),
				FreeOverAmount: wonPtr(r.FreeOverAmount),
				Active:         r.Active,
				Scope:          normalizeScope(r.ApplyScope),
			})
		}
		out = append(out, p)
	}
	return out
}

func normalizeType(raw string) RuleType {
	t := RuleType(strings.ToUpper(strings.TrimSpace(raw)))
	if t == "ZIP_PREFIX_FEE" {
		return RuleZipMatch
	}
	return t
}

func normalizeScope(raw string) Scope {
	s := Scope(strings.ToUpper(strings.TrimSpace(raw)))
	if s == "" {
		return ScopeAll
	}
	return s
}

func wonPtr(w *backend.Won) *int64 {
	if w == nil {
		return nil
	}
	v := int64(*w)
	return &v
}

// NormalizeZip keeps the digits of a zip code, truncated to five.
func NormalizeZip(zip string) string {
	var b strings.Builder
	for _, r := range zip {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
	}
	return b.String()
}
