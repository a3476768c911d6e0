package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Envelope is the {status, message, data} wrapper every backend response uses.
type Envelope[T any] struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Won is a currency amount in won. The backend serialises BigDecimal values,
// so fractional and quoted numbers are accepted and rounded half-up.
type Won int64

// UnmarshalJSON accepts numbers, quoted numbers and null.
func (w *Won) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		*w = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("backend: invalid amount %q: %w", raw, err)
	}
	*w = Won(d.Round(0).IntPart())
	return nil
}

// Timestamp parses the backend's LocalDateTime strings, which carry no zone.
type Timestamp struct {
	time.Time
}

// Location is applied to timestamps without an explicit offset.
var Location = time.FixedZone("KST", 9*60*60)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON parses RFC3339 and zone-less layouts. Empty values leave the zero time.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("backend: invalid timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, Location); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("backend: unsupported timestamp %q", s)
}

// MarshalJSON renders RFC3339 or null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// ProductRow mirrors the admin product + stock listing.
type ProductRow struct {
	ProductID     int64      `json:"productId"`
	Name          string     `json:"name"`
	Price         Won        `json:"price"`
	StockQty      int        `json:"stockQty"`
	SafetyStock   int        `json:"safetyStock"`
	SoldOutStatus string     `json:"soldOutStatus"`
	Category      string     `json:"category,omitempty"`
	TaxType       string     `json:"taxType,omitempty"`
	Active        *bool      `json:"active,omitempty"`
	DeletedAt     *Timestamp `json:"deletedAt,omitempty"`
}

// DiscountRuleRow is a rule nested in a discount policy.
type DiscountRuleRow struct {
	ID              int64            `json:"id"`
	Type            string           `json:"type"`
	Label           string           `json:"label"`
	TargetProductID int64            `json:"targetProductId"`
	DiscountRate    *decimal.Decimal `json:"discountRate,omitempty"`
	AmountOff       *Won             `json:"amountOff,omitempty"`
	MinAmount       Won              `json:"minAmount"`
	MinQty          int              `json:"minQty"`
	Active          bool             `json:"active"`
	ApplyScope      string           `json:"applyScope,omitempty"`
}

// DiscountPolicyRow is an active discount policy with its rules.
type DiscountPolicyRow struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	StartAt Timestamp         `json:"startAt"`
	EndAt   Timestamp         `json:"endAt"`
	Active  bool              `json:"active"`
	Rules   []DiscountRuleRow `json:"rules"`
}

// ShippingRuleRow is a rule nested in a shipping policy.
type ShippingRuleRow struct {
	ID             int64  `json:"id"`
	PolicyID       int64  `json:"policyId"`
	Type           string `json:"type"`
	Label          string `json:"label"`
	ZipPrefix      string `json:"zipPrefix,omitempty"`
	Fee            *Won   `json:"fee,omitempty"`
	FreeOverAmount *Won   `json:"freeOverAmount,omitempty"`
	Active         bool   `json:"active"`
	ApplyScope     string `json:"applyScope,omitempty"`
}

// ShippingPolicyRow is a shipping policy with its rules.
type ShippingPolicyRow struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	StartAt Timestamp         `json:"startAt"`
	EndAt   Timestamp         `json:"endAt"`
	Active  bool              `json:"active"`
	Rules   []ShippingRuleRow `json:"rules"`
}

// PricingItem is one cart line sent for a quote.
type PricingItem struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
}

// PricingRequest asks the backend for a server-computed breakdown.
type PricingRequest struct {
	PaymentMethod string        `json:"paymentMethod"`
	ZipCode       string        `json:"zipCode,omitempty"`
	Items         []PricingItem `json:"items"`
}

// DiscountLine is a labelled discount contribution.
type DiscountLine struct {
	Label  string `json:"label"`
	Amount Won    `json:"amount"`
}

// ItemAvailability reports stock status for a quoted line.
type ItemAvailability struct {
	StockQty      int    `json:"stockQty"`
	SafetyStock   int    `json:"safetyStock"`
	SoldOutStatus string `json:"soldOutStatus"`
	Orderable     bool   `json:"orderable"`
	BlockReason   string `json:"blockReason,omitempty"`
}

// QuoteItem is the server breakdown for one line.
type QuoteItem struct {
	ProductID         int64            `json:"productId"`
	ProductName       string           `json:"productName"`
	UnitPrice         Won              `json:"unitPrice"`
	Quantity          int              `json:"quantity"`
	ItemSubtotal      Won              `json:"itemSubtotal"`
	Discounts         []DiscountLine   `json:"discounts"`
	ItemDiscountTotal Won              `json:"itemDiscountTotal"`
	ItemFinal         Won              `json:"itemFinal"`
	Availability      ItemAvailability `json:"availability"`
}

// Quote is the server-computed price breakdown.
type Quote struct {
	Items          []QuoteItem `json:"items"`
	SubtotalAmount Won         `json:"subtotalAmount"`
	DiscountAmount Won         `json:"discountAmount"`
	DeliveryFee    Won         `json:"deliveryFee"`
	FinalAmount    Won         `json:"finalAmount"`
}

// FeatureFlag toggles storefront capabilities such as ORDER and BANK_TRANSFER.
type FeatureFlag struct {
	Key         string `json:"key"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// Customer is the identified buyer.
type Customer struct {
	CustomerID    int64  `json:"customerId"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Blocked       bool   `json:"blocked,omitempty"`
	BlockedReason string `json:"blockedReason,omitempty"`
}

// BlockInfo describes whether a customer may place orders.
type BlockInfo struct {
	Blocked       bool   `json:"blocked"`
	BlockedReason string `json:"blockedReason,omitempty"`
}

// Address is a saved delivery address.
type Address struct {
	AddressID      int64  `json:"addressId"`
	Label          string `json:"label"`
	RecipientName  string `json:"recipientName"`
	RecipientPhone string `json:"recipientPhone"`
	ZipCode        string `json:"zipCode"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	IsDefault      bool   `json:"isDefault"`
}

// CustomerProfile bundles customer, block status and addresses.
type CustomerProfile struct {
	Customer  Customer  `json:"customer"`
	BlockInfo BlockInfo `json:"blockInfo"`
	Addresses []Address `json:"addresses"`
}

// AddressInput is used for both creating and updating addresses.
type AddressInput struct {
	Label          string `json:"label"`
	RecipientName  string `json:"recipientName"`
	RecipientPhone string `json:"recipientPhone"`
	ZipCode        string `json:"zipCode"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	IsDefault      bool   `json:"isDefault"`
}

// OrderItemInput is one ordered line.
type OrderItemInput struct {
	ProductName string `json:"productName"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	ProductID   int64  `json:"productId"`
}

// OrderInput creates a pickup or delivery order.
type OrderInput struct {
	PaymentMethod string           `json:"paymentMethod"`
	Items         []OrderItemInput `json:"items"`
	CashReceipt   bool             `json:"cashReceipt"`
	ReceiptType   string           `json:"receiptType,omitempty"`
	ReceiptValue  string           `json:"receiptValue,omitempty"`
	DeliveryFee   int64            `json:"deliveryFee"`
	FinalAmount   int64            `json:"finalAmount"`
}

// Order is the created order as reported by the backend.
type Order struct {
	OrderID         int64  `json:"orderId"`
	CustomerID      int64  `json:"customerId"`
	OrderNo         string `json:"orderNo"`
	Status          string `json:"status"`
	FulfillmentType string `json:"fulfillmentType"`
	SubtotalAmount  Won    `json:"subtotalAmount"`
	DeliveryFee     Won    `json:"deliveryFee"`
	DiscountAmount  Won    `json:"discountAmount"`
	FinalAmount     Won    `json:"finalAmount"`
}

// PaymentInput creates a payment for an order.
type PaymentInput struct {
	Method string `json:"method"`
	Memo   string `json:"memo,omitempty"`
}

// Payment is the payment attached to an order.
type Payment struct {
	PaymentID int64  `json:"paymentId"`
	OrderID   int64  `json:"orderId"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	Amount    Won    `json:"amount"`
	Memo      string `json:"memo,omitempty"`
}
