package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/obs"
)

// ErrPolicyUnavailable is returned when shipping policies cannot be fetched.
var ErrPolicyUnavailable = errors.New("shipping policies unavailable")

// PolicySource provides the backend's active shipping policies.
type PolicySource interface {
	ActiveShippingPolicies(ctx context.Context) ([]backend.ShippingPolicyRow, error)
}

// Service resolves delivery fees against the backend's shipping policies.
type Service struct {
	Source PolicySource
	Logger zerolog.Logger
	Now    func() time.Time
}

// Policies fetches and converts the active policies.
func (s *Service) Policies(ctx context.Context) ([]Policy, error) {
	if s == nil || s.Source == nil {
		return nil, fmt.Errorf("%w: source not configured", ErrPolicyUnavailable)
	}
	ctx, span := obs.StartSpan(ctx, "shipping.Policies")
	defer span.End()
	rows, err := s.Source.ActiveShippingPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyUnavailable, err)
	}
	return FromRows(rows), nil
}

// DeliveryFee fetches policies and resolves the fee. When policies cannot be
// loaded the server fee is kept and the error is returned alongside it.
func (s *Service) DeliveryFee(ctx context.Context, subtotal int64, zip string, serverFee int64) (Resolution, error) {
	policies, err := s.Policies(ctx)
	if err != nil {
		res := Resolution{Fee: max(serverFee, 0), Category: CategoryUnavailable}
		s.Observe(ctx, res, err)
		return res, err
	}
	res := Resolve(subtotal, zip, policies, serverFee, s.now())
	s.Observe(ctx, res, nil)
	return res, nil
}

// Observe logs and counts a resolution. Misconfiguration surfaces as warnings
// rather than errors.
func (s *Service) Observe(ctx context.Context, res Resolution, fetchErr error) {
	logger := s.logger(ctx)
	obs.RecordShippingRule(string(res.Category))
	switch {
	case fetchErr != nil:
		logger.Warn().Err(fetchErr).Int64("fee", res.Fee).Msg("shipping policies unavailable, keeping server delivery fee")
	case res.Category == CategoryNoRule:
		logger.Warn().Msg("no shipping rule matched active policies, delivery is free")
	}
	for _, w := range res.Warnings {
		logger.Warn().Err(w).Int64("rule_id", res.RuleID).Msg("shipping configuration error")
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if s == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &s.Logger
}
