package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/chaldduk-checkout/internal/address"
	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/cart"
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
	"github.com/noah-isme/chaldduk-checkout/internal/events"
	"github.com/noah-isme/chaldduk-checkout/internal/lock"
	"github.com/noah-isme/chaldduk-checkout/internal/obs"
	"github.com/noah-isme/chaldduk-checkout/internal/pricing"
)

// Feature flag keys checked before an order is accepted.
const (
	FeatureOrder        = "ORDER"
	FeatureBankTransfer = "BANK_TRANSFER"
)

// Cash receipt kinds.
const (
	ReceiptPersonal = "personal"
	ReceiptBusiness = "business"
)

var (
	ErrOrderingDisabled     = errors.New("ordering is currently disabled")
	ErrBankTransferDisabled = errors.New("bank transfer is currently disabled")
	ErrCustomerBlocked      = errors.New("customer is blocked from ordering")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidPhone         = errors.New("phone number must be 010 followed by 8 digits")
	ErrInvalidReceipt       = errors.New("cash receipt value is invalid")
	ErrNoSummary            = errors.New("order summary unavailable")
	ErrPaymentFailed        = errors.New("payment could not be created")
)

var mobilePattern = regexp.MustCompile(`^010\d{8}$`)

// alreadyProcessed are backend messages that mean the payment already exists.
var alreadyProcessed = []string{"이미 처리된 결제", "already processed", "이미 존재"}

// Backend is the subset of the bakery API used to place orders.
type Backend interface {
	Features(ctx context.Context) ([]backend.FeatureFlag, error)
	IdentifyCustomer(ctx context.Context, name, phone string) (*backend.Customer, error)
	CustomerProfile(ctx context.Context, customerID int64) (*backend.CustomerProfile, error)
	CreateDeliveryOrder(ctx context.Context, customerID, addressID int64, in backend.OrderInput) (*backend.Order, error)
	CreatePickupOrder(ctx context.Context, customerID int64, in backend.OrderInput) (*backend.Order, error)
	PaymentByOrder(ctx context.Context, orderID int64) (*backend.Payment, error)
	CreatePayment(ctx context.Context, orderID int64, in backend.PaymentInput) (*backend.Payment, error)
}

// Invalidator drops cached state that an order makes stale.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Summarizer recomputes the price breakdown at submission time.
type Summarizer interface {
	Summarize(ctx context.Context, in pricing.Input) (*pricing.Breakdown, error)
}

// Input is an order submission for a cart session.
type Input struct {
	BuyerName       string         `json:"buyerName" validate:"required,max=50"`
	BuyerPhone      string         `json:"buyerPhone" validate:"required"`
	PaymentMethod   string         `json:"paymentMethod" validate:"required,oneof=BANK_TRANSFER CARD bank_transfer card"`
	FulfillmentType string         `json:"fulfillmentType" validate:"required,oneof=PICKUP DELIVERY pickup delivery"`
	Address         *address.Entry `json:"address,omitempty"`
	CashReceipt     bool           `json:"cashReceipt"`
	ReceiptType     string         `json:"receiptType,omitempty" validate:"omitempty,oneof=personal business"`
	ReceiptValue    string         `json:"receiptValue,omitempty"`
	AgreeTerms      bool           `json:"agreeTerms" validate:"required"`
	AgreePrivacy    bool           `json:"agreePrivacy" validate:"required"`
}

// Receipt is what the buyer sees once the order is placed.
type Receipt struct {
	OrderID        int64  `json:"orderId"`
	OrderNo        string `json:"orderNo"`
	CustomerID     int64  `json:"customerId"`
	PaymentID      int64  `json:"paymentId,omitempty"`
	PaymentStatus  string `json:"paymentStatus,omitempty"`
	FinalAmount    int64  `json:"finalAmount"`
	ProductAmount  int64  `json:"productAmount"`
	DiscountAmount int64  `json:"discountAmount"`
	DeliveryFee    int64  `json:"deliveryFee"`
}

// Service places orders for cart sessions.
type Service struct {
	Backend   Backend
	Pricing   Summarizer
	Carts     *cart.Store
	Addresses *address.Book
	Locker    *lock.Locker
	LockTTL   time.Duration
	Events    *events.Bus
	Catalog   Invalidator // dropped after each new order
	Logger    zerolog.Logger
}

// Submit validates the buyer, places the order and opens its payment. The
// cart is emptied once the payment is open. Submissions for the same cart are
// serialised through the lock, so a duplicate finds an empty cart. When the
// payment fails the order is remembered on the session and a resubmission of
// the same cart by the same buyer retries only the payment.
func (s *Service) Submit(ctx context.Context, cartID string, in Input) (*Receipt, error) {
	if s == nil || s.Backend == nil || s.Pricing == nil || s.Carts == nil {
		return nil, errors.New("checkout service not configured")
	}
	in.PaymentMethod = strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	in.FulfillmentType = strings.ToUpper(strings.TrimSpace(in.FulfillmentType))
	fulfillment := discount.Fulfillment(in.FulfillmentType)
	phone, err := validateBuyer(in)
	if err != nil {
		obs.RecordOrderSubmit(string(fulfillment), "invalid")
		return nil, err
	}

	var receipt *Receipt
	run := func(ctx context.Context) error {
		r, err := s.submit(ctx, cartID, in, phone)
		receipt = r
		return err
	}
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, "checkout:"+cartID, s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.RecordOrderSubmit(string(fulfillment), outcome(err))
		return nil, err
	}
	obs.RecordOrderSubmit(string(fulfillment), "ok")
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, cartID string, in Input, phone string) (*Receipt, error) {
	ctx, span := obs.StartSpan(ctx, "checkout.Submit")
	defer span.End()
	logger := s.logger(ctx)
	fulfillment := discount.Fulfillment(in.FulfillmentType)
	method := discount.PaymentMethod(in.PaymentMethod)

	sess, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if sess.Cart.Empty() {
		return nil, ErrEmptyCart
	}

	flags, err := s.Backend.Features(ctx)
	if err != nil {
		return nil, fmt.Errorf("load feature flags: %w", err)
	}
	if !backend.FeatureEnabled(flags, FeatureOrder) {
		return nil, ErrOrderingDisabled
	}
	if method == discount.BankTransfer && !backend.FeatureEnabled(flags, FeatureBankTransfer) {
		return nil, ErrBankTransferDisabled
	}

	buyerName := strings.TrimSpace(in.BuyerName)
	customer, err := s.Backend.IdentifyCustomer(ctx, buyerName, phone)
	if err != nil {
		return nil, fmt.Errorf("identify customer: %w", err)
	}
	if customer == nil || customer.CustomerID == 0 {
		return nil, errors.New("identify customer: backend returned no customer id")
	}
	profile, err := s.Backend.CustomerProfile(ctx, customer.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer profile: %w", err)
	}
	if profile != nil && profile.BlockInfo.Blocked {
		s.emit(ctx, events.TopicOrderRejected, cartID, map[string]any{
			"customerId": customer.CustomerID,
			"reason":     profile.BlockInfo.BlockedReason,
		})
		return nil, ErrCustomerBlocked
	}

	var order *backend.Order
	if sess.Pending.Matches(customer.CustomerID, sess.Cart, string(fulfillment), string(method)) {
		order = orderFromPending(sess.Pending)
		logger.Info().Str("order_no", order.OrderNo).Msg("retrying payment for pending order")
	} else {
		order, err = s.placeOrder(ctx, sess, customer.CustomerID, in, buyerName, phone)
		if err != nil {
			return nil, err
		}
	}

	payment, err := s.ensurePayment(ctx, order, method, buyerName)
	if err != nil {
		s.emit(ctx, events.TopicPaymentFailed, order.OrderNo, map[string]any{"orderId": order.OrderID, "error": err.Error()})
		pending := pendingFromOrder(order, customer.CustomerID, sess.Cart, fulfillment, method)
		if _, setErr := s.Carts.SetPending(ctx, cartID, pending); setErr != nil {
			logger.Warn().Err(setErr).Str("order_no", order.OrderNo).Msg("pending order not recorded")
		}
		return nil, fmt.Errorf("%w: order %s: %w", ErrPaymentFailed, order.OrderNo, err)
	}

	if _, err := s.Carts.Reset(ctx, cartID); err != nil {
		logger.Warn().Err(err).Str("cart_id", cartID).Msg("cart reset after order failed")
	} else {
		s.emit(ctx, events.TopicCartReset, cartID, map[string]any{"orderNo": order.OrderNo})
	}

	receipt := &Receipt{
		OrderID:        order.OrderID,
		OrderNo:        order.OrderNo,
		CustomerID:     customer.CustomerID,
		FinalAmount:    int64(order.FinalAmount),
		ProductAmount:  int64(order.SubtotalAmount),
		DiscountAmount: int64(order.DiscountAmount),
		DeliveryFee:    int64(order.DeliveryFee),
	}
	if payment != nil {
		receipt.PaymentID = payment.PaymentID
		receipt.PaymentStatus = payment.Status
	}
	s.emit(ctx, events.TopicOrderSubmitted, order.OrderNo, map[string]any{
		"orderId":       order.OrderID,
		"customerId":    customer.CustomerID,
		"fulfillment":   string(fulfillment),
		"paymentMethod": string(method),
		"finalAmount":   receipt.FinalAmount,
	})
	return receipt, nil
}

// placeOrder saves the delivery address, reprices the cart and creates the
// backend order.
func (s *Service) placeOrder(ctx context.Context, sess cart.Session, customerID int64, in Input, buyerName, phone string) (*backend.Order, error) {
	fulfillment := discount.Fulfillment(in.FulfillmentType)
	var (
		addressID int64
		zip       string
		err       error
	)
	if fulfillment == discount.Delivery {
		addressID, zip, err = s.saveAddress(ctx, customerID, in.Address, buyerName, phone)
		if err != nil {
			return nil, err
		}
	}

	bd, err := s.Pricing.Summarize(ctx, pricing.Input{
		Cart:        sess.Cart,
		Payment:     discount.PaymentMethod(in.PaymentMethod),
		Fulfillment: fulfillment,
		Zip:         zip,
	})
	if err != nil {
		return nil, err
	}
	if bd == nil || len(bd.Items) == 0 {
		return nil, ErrNoSummary
	}

	orderIn := orderInput(in, bd)
	var order *backend.Order
	if fulfillment == discount.Delivery {
		order, err = s.Backend.CreateDeliveryOrder(ctx, customerID, addressID, orderIn)
	} else {
		order, err = s.Backend.CreatePickupOrder(ctx, customerID, orderIn)
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if order == nil || order.OrderID == 0 || order.OrderNo == "" {
		return nil, errors.New("create order: backend returned no order number")
	}
	s.logger(ctx).Info().Str("order_no", order.OrderNo).Str("fulfillment", string(fulfillment)).Msg("order created")

	if s.Catalog != nil {
		if err := s.Catalog.Invalidate(ctx); err != nil {
			s.logger(ctx).Warn().Err(err).Msg("catalog snapshot not invalidated")
		}
	}
	return order, nil
}

func pendingFromOrder(order *backend.Order, customerID int64, c cart.Cart, f discount.Fulfillment, m discount.PaymentMethod) *cart.PendingOrder {
	return &cart.PendingOrder{
		OrderID:        order.OrderID,
		OrderNo:        order.OrderNo,
		CustomerID:     customerID,
		Fulfillment:    string(f),
		PaymentMethod:  string(m),
		Lines:          append([]cart.Line(nil), c.Lines...),
		SubtotalAmount: int64(order.SubtotalAmount),
		DiscountAmount: int64(order.DiscountAmount),
		DeliveryFee:    int64(order.DeliveryFee),
		FinalAmount:    int64(order.FinalAmount),
	}
}

func orderFromPending(p *cart.PendingOrder) *backend.Order {
	return &backend.Order{
		OrderID:         p.OrderID,
		CustomerID:      p.CustomerID,
		OrderNo:         p.OrderNo,
		FulfillmentType: p.Fulfillment,
		SubtotalAmount:  backend.Won(p.SubtotalAmount),
		DeliveryFee:     backend.Won(p.DeliveryFee),
		DiscountAmount:  backend.Won(p.DiscountAmount),
		FinalAmount:     backend.Won(p.FinalAmount),
	}
}

// saveAddress stores the delivery address and returns its id and zip code.
// A missing zip falls back to the customer's default saved address.
func (s *Service) saveAddress(ctx context.Context, customerID int64, entry *address.Entry, buyerName, buyerPhone string) (int64, string, error) {
	if s.Addresses == nil {
		return 0, "", errors.New("address book not configured")
	}
	if entry == nil {
		return 0, "", address.ErrIncomplete
	}
	e := *entry
	if strings.TrimSpace(e.RecipientPhone) != "" {
		digits := DigitsOnly(e.RecipientPhone)
		if !mobilePattern.MatchString(digits) {
			return 0, "", fmt.Errorf("recipient %w", ErrInvalidPhone)
		}
		e.RecipientPhone = digits
	}
	saved, err := s.Addresses.Save(ctx, customerID, e, buyerName, buyerPhone)
	if err != nil {
		return 0, "", err
	}
	zip := firstNonEmpty(saved.ZipCode, e.ZipCode)
	if zip == "" {
		res, err := s.Addresses.LookupFor(customerID).Open(ctx)
		if err != nil && !errors.Is(err, address.ErrNoAddress) {
			s.logger(ctx).Warn().Err(err).Msg("saved address lookup failed, pricing without zip")
		}
		zip = res.Zip
	}
	return saved.AddressID, zip, nil
}

// ensurePayment reuses the order's payment when one exists and creates it
// otherwise. A creation error saying the payment was already processed counts
// as success.
func (s *Service) ensurePayment(ctx context.Context, order *backend.Order, method discount.PaymentMethod, buyerName string) (*backend.Payment, error) {
	logger := s.logger(ctx)
	existing, err := s.Backend.PaymentByOrder(ctx, order.OrderID)
	if err != nil {
		logger.Debug().Err(err).Int64("order_id", order.OrderID).Msg("payment lookup failed, creating")
	}
	if existing != nil && existing.PaymentID != 0 {
		s.emit(ctx, events.TopicPaymentReused, order.OrderNo, map[string]any{"paymentId": existing.PaymentID})
		return existing, nil
	}

	in := backend.PaymentInput{Method: string(method)}
	if method == discount.BankTransfer {
		in.Memo = buyerName
	}
	created, err := s.Backend.CreatePayment(ctx, order.OrderID, in)
	if err != nil {
		if !isAlreadyProcessed(err) {
			return nil, err
		}
		existing, lookupErr := s.Backend.PaymentByOrder(ctx, order.OrderID)
		if lookupErr != nil {
			logger.Warn().Err(lookupErr).Int64("order_id", order.OrderID).Msg("processed payment could not be reloaded")
		}
		s.emit(ctx, events.TopicPaymentReused, order.OrderNo, map[string]any{"reason": err.Error()})
		return existing, nil
	}
	if created == nil || created.PaymentID == 0 {
		return nil, errors.New("backend returned no payment id")
	}
	return created, nil
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.logger(ctx).Warn().Err(err).Str("topic", topic).Msg("checkout event not recorded")
	}
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 30 * time.Second
	}
	return s.LockTTL
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}

func orderInput(in Input, bd *pricing.Breakdown) backend.OrderInput {
	out := backend.OrderInput{
		PaymentMethod: in.PaymentMethod,
		Items:         make([]backend.OrderItemInput, 0, len(bd.Items)),
		CashReceipt:   in.CashReceipt,
		DeliveryFee:   bd.Shipping,
		FinalAmount:   bd.FinalPrice,
	}
	for _, it := range bd.Items {
		var unit int64
		if it.Qty > 0 {
			unit = it.OriginPrice / int64(it.Qty)
		}
		out.Items = append(out.Items, backend.OrderItemInput{
			ProductName: it.Name,
			UnitPrice:   unit,
			Quantity:    it.Qty,
			ProductID:   it.ProductID,
		})
	}
	if in.CashReceipt && in.ReceiptType != "" && strings.TrimSpace(in.ReceiptValue) != "" {
		out.ReceiptType = in.ReceiptType
		out.ReceiptValue = receiptValue(in)
	}
	return out
}

// validateBuyer checks the phone, consent and cash receipt fields and returns
// the buyer phone reduced to digits.
func validateBuyer(in Input) (string, error) {
	phone := DigitsOnly(in.BuyerPhone)
	if !mobilePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	if !in.CashReceipt {
		return phone, nil
	}
	switch in.ReceiptType {
	case ReceiptPersonal:
		if !mobilePattern.MatchString(DigitsOnly(in.ReceiptValue)) {
			return "", fmt.Errorf("%w: personal receipts need a mobile number", ErrInvalidReceipt)
		}
	case ReceiptBusiness:
		if strings.TrimSpace(in.ReceiptValue) == "" {
			return "", fmt.Errorf("%w: business registration number is required", ErrInvalidReceipt)
		}
	default:
		return "", fmt.Errorf("%w: unknown receipt type %q", ErrInvalidReceipt, in.ReceiptType)
	}
	return phone, nil
}

func receiptValue(in Input) string {
	if in.ReceiptType == ReceiptPersonal {
		return DigitsOnly(in.ReceiptValue)
	}
	return strings.TrimSpace(in.ReceiptValue)
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlreadyProcessed(err error) bool {
	msg := err.Error()
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	for _, marker := range alreadyProcessed {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrOrderingDisabled), errors.Is(err, ErrBankTransferDisabled),
		errors.Is(err, ErrCustomerBlocked), errors.Is(err, ErrEmptyCart):
		return "rejected"
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidReceipt), errors.Is(err, address.ErrIncomplete):
		return "invalid"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	default:
		return "failed"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
