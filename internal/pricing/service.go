package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
	"github.com/noah-isme/chaldduk-checkout/internal/obs"
	"github.com/noah-isme/chaldduk-checkout/internal/shipping"
)

// ErrQuoteUnavailable is returned when a breakdown cannot be produced because
// a remote dependency failed.
var ErrQuoteUnavailable = errors.New("price quote unavailable")

// Quoter requests server-computed price breakdowns.
type Quoter interface {
	Quote(ctx context.Context, req backend.PricingRequest) (*backend.Quote, error)
}

// Service orchestrates the remote calls around Compute.
type Service struct {
	Quoter   Quoter
	Catalog  catalog.Provider
	Shipping *shipping.Service
	// LocalShipping enables fee resolution against shipping policies; when
	// false the quote's delivery fee is used as is.
	LocalShipping bool
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Summarize prices in. A nil breakdown with a nil error means there is nothing
// to price. Remote failures return ErrQuoteUnavailable; a shipping policy
// failure only drops the local fee override.
func (s *Service) Summarize(ctx context.Context, in Input) (*Breakdown, error) {
	if s == nil || s.Quoter == nil || s.Catalog == nil {
		return nil, fmt.Errorf("%w: pricing not configured", ErrQuoteUnavailable)
	}
	if in.Cart.Empty() {
		obs.RecordPricing("empty")
		return nil, nil
	}
	ctx, span := obs.StartSpan(ctx, "pricing.Summarize")
	defer span.End()
	logger := s.logger(ctx)

	cat, err := s.Catalog.Load(ctx)
	if err != nil {
		obs.RecordPricing("degraded")
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}
	req := Request(in, cat)
	if len(req.Items) == 0 {
		obs.RecordPricing("empty")
		return nil, nil
	}

	var (
		quote    *backend.Quote
		policies []shipping.Policy
		shipErr  error
	)
	wantPolicies := in.Fulfillment == discount.Delivery && s.LocalShipping && s.Shipping != nil
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := s.Quoter.Quote(gctx, req)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if wantPolicies {
		g.Go(func() error {
			policies, shipErr = s.Shipping.Policies(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		obs.RecordPricing("degraded")
		logger.Warn().Err(err).Msg("price quote failed, no summary")
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}

	ship := ShippingInput{Policies: policies, Available: wantPolicies && shipErr == nil, Now: s.now()}
	bd := Compute(in, cat, quote, ship)
	if bd == nil {
		obs.RecordPricing("empty")
		return nil, nil
	}
	if len(bd.Skipped) > 0 {
		logger.Debug().Ints64("product_ids", bd.Skipped).Msg("cart lines missing from quote skipped")
	}
	if shipErr != nil {
		bd.ShippingRule.Category = shipping.CategoryUnavailable
	}
	if wantPolicies {
		s.Shipping.Observe(ctx, bd.ShippingRule, shipErr)
	}
	obs.RecordPricing("ok")
	return bd, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}
