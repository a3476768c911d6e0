package catalog

import (
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
)

// Product is an orderable catalog entry with its merged discount rules.
type Product struct {
	ID            int64          `json:"productId"`
	Name          string         `json:"name"`
	Price         discount.Money `json:"price"`
	StockQty      int            `json:"stockQty"`
	SafetyStock   int            `json:"safetyStock"`
	SoldOutStatus string         `json:"soldOutStatus"`
	TaxType       string         `json:"taxType,omitempty"`
	Category      string         `json:"category,omitempty"`
	discount.Set
}

// Available is the quantity that can still be ordered.
func (p Product) Available() int {
	if n := p.StockQty - p.SafetyStock; n > 0 {
		return n
	}
	return 0
}

// Catalog is the merged product list in backend order.
type Catalog struct {
	Products []Product `json:"products"`
}

// Find returns the product with the given id.
func (c *Catalog) Find(id int64) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
