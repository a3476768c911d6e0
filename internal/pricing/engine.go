package pricing

import (
	"time"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/cart"
	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
	"github.com/noah-isme/chaldduk-checkout/internal/shipping"
)

// Money represents a monetary value in won.
type Money = int64

// Input is everything a breakdown depends on besides remote data.
type Input struct {
	Cart        cart.Cart
	Payment     discount.PaymentMethod
	Fulfillment discount.Fulfillment
	Zip         string
}

// Item is one priced line.
type Item struct {
	ProductID   int64    `json:"productId"`
	Name        string   `json:"name"`
	Qty         int      `json:"qty"`
	OriginPrice Money    `json:"originPrice"`
	FinalPrice  Money    `json:"finalPrice"`
	Info        []string `json:"info"`
}

// Breakdown is the priced order summary.
type Breakdown struct {
	Items      []Item `json:"items"`
	Origin     Money  `json:"origin"`
	Discount   Money  `json:"discount"`
	Total      Money  `json:"total"`
	Shipping   Money  `json:"shipping"`
	FinalPrice Money  `json:"finalPrice"`

	ShippingRule shipping.Resolution `json:"shippingRule"`
	// Skipped lists cart products the quote did not price.
	Skipped []int64 `json:"-"`
}

// ShippingInput carries the shipping policies for a delivery breakdown.
// Available is false when policies could not be fetched or local resolution
// is switched off; the quote's delivery fee is used then.
type ShippingInput struct {
	Policies  []shipping.Policy
	Available bool
	Now       time.Time
}

// Request builds the quote request for the cart lines the catalog can price.
// The zip code is only sent for delivery.
func Request(in Input, cat *catalog.Catalog) backend.PricingRequest {
	req := backend.PricingRequest{
		PaymentMethod: string(in.Payment),
		Items:         make([]backend.PricingItem, 0, len(in.Cart.Lines)),
	}
	if in.Fulfillment == discount.Delivery {
		req.ZipCode = shipping.NormalizeZip(in.Zip)
	}
	for _, line := range in.Cart.Lines {
		p, ok := cat.Find(line.ProductID)
		if !ok {
			continue
		}
		req.Items = append(req.Items, backend.PricingItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    line.Qty,
		})
	}
	return req
}

// Compute reconciles the server quote with pickup-only discounts and the
// delivery fee. It is pure: identical arguments give identical breakdowns.
// An empty cart or a missing quote yields nil.
func Compute(in Input, cat *catalog.Catalog, quote *backend.Quote, ship ShippingInput) *Breakdown {
	if in.Cart.Empty() || quote == nil {
		return nil
	}

	quoted := make(map[int64]backend.QuoteItem, len(quote.Items))
	for _, qi := range quote.Items {
		quoted[qi.ProductID] = qi
	}

	bd := &Breakdown{Items: make([]Item, 0, len(in.Cart.Lines))}
	var additional Money
	for _, line := range in.Cart.Lines {
		qi, ok := quoted[line.ProductID]
		if !ok {
			bd.Skipped = append(bd.Skipped, line.ProductID)
			continue
		}
		item := Item{
			ProductID:   qi.ProductID,
			Name:        qi.ProductName,
			Qty:         qi.Quantity,
			OriginPrice: int64(qi.ItemSubtotal),
			FinalPrice:  int64(qi.ItemFinal),
			Info:        make([]string, 0, len(qi.Discounts)),
		}
		for _, d := range qi.Discounts {
			if d.Amount > 0 {
				item.Info = append(item.Info, discount.Describe(d.Label, int64(d.Amount)))
			}
		}
		if in.Fulfillment == discount.Pickup {
			extra := pickupDiscounts(cat, qi, in.Payment)
			for _, a := range extra {
				item.Info = append(item.Info, discount.Describe(a.Label, a.Amount))
			}
			sum := discount.Total(extra)
			item.FinalPrice -= sum
			additional += sum
		}
		bd.Items = append(bd.Items, item)
	}

	bd.Origin = int64(quote.SubtotalAmount)
	bd.Discount = int64(quote.DiscountAmount) + additional
	bd.Total = max(bd.Origin-bd.Discount, 0)

	switch {
	case in.Fulfillment != discount.Delivery:
		bd.ShippingRule = shipping.Resolution{Category: shipping.CategoryPickup}
	case ship.Available:
		bd.ShippingRule = shipping.Resolve(int64(quote.SubtotalAmount), in.Zip, ship.Policies, int64(quote.DeliveryFee), ship.Now)
	default:
		bd.ShippingRule = shipping.Resolution{Fee: max(int64(quote.DeliveryFee), 0), Category: shipping.CategoryServerDefault}
	}
	bd.Shipping = bd.ShippingRule.Fee
	bd.FinalPrice = bd.Total + bd.Shipping
	return bd
}

// pickupDiscounts evaluates the pickup-scoped rules the quote does not know
// about. The sum is capped at what the server left on the line.
func pickupDiscounts(cat *catalog.Catalog, qi backend.QuoteItem, payment discount.PaymentMethod) []discount.Applied {
	p, ok := cat.Find(qi.ProductID)
	if !ok {
		return nil
	}
	rules := p.Filter(payment, discount.Pickup, discount.ScopePickup)
	if len(rules) == 0 {
		return nil
	}
	applied := discount.Evaluate(discount.Line{UnitPrice: int64(qi.UnitPrice), Qty: qi.Quantity}, rules)
	remaining := max(int64(qi.ItemFinal), 0)
	out := applied[:0]
	for _, a := range applied {
		if remaining <= 0 {
			break
		}
		a.Amount = min(a.Amount, remaining)
		remaining -= a.Amount
		out = append(out, a)
	}
	return out
}
