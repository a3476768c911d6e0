package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
	"github.com/noah-isme/chaldduk-checkout/internal/obs"
)

// ErrUnknownProduct is returned when the product is not orderable in the current catalog.
var ErrUnknownProduct = errors.New("product not in catalog")

// Service applies cart mutations against the live catalog.
type Service struct {
	Store   *Store
	Catalog catalog.Provider
	Logger  zerolog.Logger
}

// ChangeQuantity adjusts a product's quantity in the session's cart.
func (s *Service) ChangeQuantity(ctx context.Context, sessionID string, productID int64, delta int) (Session, error) {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return Session{}, errors.New("cart service not configured")
	}
	cat, err := s.Catalog.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	product, ok := cat.Find(productID)
	if !ok {
		// Shrinking a line for a product that dropped out of the catalog is
		// still allowed so the customer can clear it.
		if delta >= 0 {
			obs.RecordCartMutation("unknown_product")
			return Session{}, fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
		}
		product = catalog.Product{ID: productID}
	}

	sess, err := s.Store.Update(ctx, sessionID, func(c Cart) (Cart, error) {
		if !ok {
			return c.Remove(productID), nil
		}
		return c.ChangeQuantity(product, delta)
	})
	switch {
	case errors.Is(err, ErrStockInsufficient):
		obs.RecordCartMutation("stock_insufficient")
		zerolog.Ctx(ctx).Debug().Int64("product_id", productID).Int("delta", delta).Int("available", product.Available()).Msg("cart change rejected")
		return sess, err
	case err != nil:
		obs.RecordCartMutation("error")
		return Session{}, err
	}
	obs.RecordCartMutation("ok")
	return sess, nil
}
