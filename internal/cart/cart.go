package cart

import (
	"errors"

	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
)

// ErrStockInsufficient is returned when a change would exceed the orderable stock.
var ErrStockInsufficient = errors.New("stock insufficient")

// Line is a requested quantity of one product. Stored lines always have Qty >= 1.
type Line struct {
	ProductID int64 `json:"productId"`
	Qty       int   `json:"qty"`
}

// Cart is an ordered set of lines keyed by product.
type Cart struct {
	Lines []Line `json:"items"`
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Qty returns the requested quantity for a product.
func (c Cart) Qty(productID int64) int {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i].Qty
	}
	return 0
}

// TotalQty sums all line quantities.
func (c Cart) TotalQty() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Qty
	}
	return n
}

func (c Cart) index(productID int64) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// ChangeQuantity applies delta to the product's line and returns the new cart.
// The receiver is never modified, so a rejected change leaves state untouched.
//
// A new line is created with min(delta, available) and is rejected when nothing
// is available. An increase that would exceed the available stock is rejected
// outright. A decrease also clamps the line to the available stock, so a line
// whose stock shrank comes back within bounds; a line reaching zero is removed.
func (c Cart) ChangeQuantity(p catalog.Product, delta int) (Cart, error) {
	if delta == 0 {
		return c, nil
	}
	available := p.Available()
	i := c.index(p.ID)

	if i < 0 {
		if delta < 0 {
			return c, nil
		}
		if available < 1 {
			return c, ErrStockInsufficient
		}
		next := c.clone()
		next.Lines = append(next.Lines, Line{ProductID: p.ID, Qty: min(delta, available)})
		return next, nil
	}

	current := c.Lines[i].Qty
	if delta > 0 && delta > available-current {
		return c, ErrStockInsufficient
	}
	var qty int
	if delta > 0 {
		qty = current + delta
	} else {
		qty = min(current+max(delta, -current), available)
	}
	next := c.clone()
	if qty <= 0 {
		next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
		return next, nil
	}
	next.Lines[i].Qty = qty
	return next, nil
}

// Remove drops the product's line if present.
func (c Cart) Remove(productID int64) Cart {
	i := c.index(productID)
	if i < 0 {
		return c
	}
	next := c.clone()
	next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
	return next
}

func (c Cart) clone() Cart {
	lines := make([]Line, len(c.Lines), len(c.Lines)+1)
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}
