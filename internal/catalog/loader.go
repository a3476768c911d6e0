package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
	"github.com/noah-isme/chaldduk-checkout/internal/obs"
)

// ErrCatalogUnavailable is returned when the product feed cannot be loaded.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

const bankTransferPrefix = "BANK_TRANSFER"

// Source provides the raw backend feeds.
type Source interface {
	Products(ctx context.Context) ([]backend.ProductRow, error)
	ActiveDiscountPolicies(ctx context.Context) ([]backend.DiscountPolicyRow, error)
}

// Loader fetches products and discount policies and merges them.
type Loader struct {
	Source Source
	Cache  *Cache
	Logger zerolog.Logger
	Now    func() time.Time
}

// Load returns the orderable products with discount rules attached. A failing
// discount feed degrades to a catalog without discounts.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	if l == nil || l.Source == nil {
		return nil, fmt.Errorf("%w: source not configured", ErrCatalogUnavailable)
	}
	ctx, span := obs.StartSpan(ctx, "catalog.Load")
	defer span.End()

	logger := l.logger(ctx)
	if cached, ok, err := l.Cache.Get(ctx); err != nil {
		logger.Warn().Err(err).Msg("catalog snapshot read failed")
	} else if ok {
		return cached, nil
	}

	var (
		products    []backend.ProductRow
		policies    []backend.DiscountPolicyRow
		discountErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := l.Source.Products(gctx)
		if err != nil {
			return err
		}
		products = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.Source.ActiveDiscountPolicies(gctx)
		if err != nil {
			discountErr = err
			return nil
		}
		policies = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	if discountErr != nil {
		logger.Warn().Err(discountErr).Msg("discount policies unavailable, continuing without discounts")
		policies = nil
	}

	cat := Merge(products, policies, l.now(), logger)
	if err := l.Cache.Put(ctx, cat); err != nil {
		logger.Warn().Err(err).Msg("catalog snapshot write failed")
	}
	return cat, nil
}

func (l *Loader) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loader) logger(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		return ctxLogger
	}
	return &l.Logger
}

// Merge filters out products that cannot be ordered and attaches every active
// rule to its target product. Rules whose target is missing are dropped.
func Merge(rows []backend.ProductRow, policies []backend.DiscountPolicyRow, now time.Time, logger *zerolog.Logger) *Catalog {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cat := &Catalog{Products: make([]Product, 0, len(rows))}
	index := make(map[int64]int, len(rows))
	for _, row := range rows {
		if !orderable(row) {
			continue
		}
		index[row.ProductID] = len(cat.Products)
		cat.Products = append(cat.Products, Product{
			ID:            row.ProductID,
			Name:          row.Name,
			Price:         int64(row.Price),
			StockQty:      row.StockQty,
			SafetyStock:   row.SafetyStock,
			SoldOutStatus: row.SoldOutStatus,
			TaxType:       row.TaxType,
			Category:      row.Category,
		})
	}

	for _, policy := range policies {
		if !policy.Active || !withinWindow(now, policy.StartAt.Time, policy.EndAt.Time) {
			continue
		}
		for _, raw := range policy.Rules {
			if !raw.Active {
				continue
			}
			rule, err := normalizeRule(raw)
			if err != nil {
				obs.RecordDroppedRule("invalid")
				logger.Warn().Err(err).Int64("rule_id", raw.ID).Str("type", raw.Type).Msg("discount rule skipped")
				continue
			}
			pos, ok := index[raw.TargetProductID]
			if !ok {
				obs.RecordDroppedRule("dangling")
				logger.Debug().Int64("rule_id", raw.ID).Int64("target_product_id", raw.TargetProductID).Msg("discount rule target not in catalog")
				continue
			}
			p := &cat.Products[pos]
			if IsBankTransferRule(raw.Type) {
				p.Bank = append(p.Bank, rule)
			} else {
				p.Qty = append(p.Qty, rule)
			}
		}
	}
	return cat
}

// IsBankTransferRule reports whether a backend rule type belongs to the bank-transfer channel.
func IsBankTransferRule(ruleType string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(ruleType)), bankTransferPrefix)
}

func orderable(row backend.ProductRow) bool {
	if row.Active != nil && !*row.Active {
		return false
	}
	if row.DeletedAt != nil && !row.DeletedAt.IsZero() {
		return false
	}
	return row.StockQty > row.SafetyStock
}

func withinWindow(now, start, end time.Time) bool {
	if !start.IsZero() && now.Before(start) {
		return false
	}
	if !end.IsZero() && !now.Before(end) {
		return false
	}
	return true
}

func normalizeRule(raw backend.DiscountRuleRow) (discount.Rule, error) {
	ruleType := strings.ToUpper(strings.TrimSpace(raw.Type))
	var rule discount.Rule
	switch {
	case strings.HasSuffix(ruleType, "_RATE"):
		if raw.DiscountRate == nil {
			return discount.Rule{}, fmt.Errorf("%w: rate rule without discountRate", discount.ErrInvalidRule)
		}
		rule = discount.Rate(raw.Label, *raw.DiscountRate)
	case strings.HasSuffix(ruleType, "_FIXED"):
		if raw.AmountOff == nil {
			return discount.Rule{}, fmt.Errorf("%w: fixed rule without amountOff", discount.ErrInvalidRule)
		}
		rule = discount.Fixed(raw.Label, int64(*raw.AmountOff))
	default:
		return discount.Rule{}, fmt.Errorf("%w: unknown type %q", discount.ErrInvalidRule, raw.Type)
	}
	rule.MinAmount = int64(raw.MinAmount)
	rule.MinQty = raw.MinQty
	switch scope := discount.Scope(strings.ToUpper(strings.TrimSpace(raw.ApplyScope))); scope {
	case "", discount.ScopeAll:
		rule.Scope = discount.ScopeAll
	case discount.ScopePickup:
		rule.Scope = discount.ScopePickup
	default:
		return discount.Rule{}, fmt.Errorf("%w: unknown scope %q", discount.ErrInvalidRule, raw.ApplyScope)
	}
	if err := rule.Validate(); err != nil {
		return discount.Rule{}, err
	}
	return rule, nil
}
