package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Products lists products with stock information.
func (c *Client) Products(ctx context.Context) ([]ProductRow, error) {
	var rows []ProductRow
	if err := c.get(ctx, "products", "/admin/products", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ActiveDiscountPolicies lists currently active discount policies with their rules.
func (c *Client) ActiveDiscountPolicies(ctx context.Context) ([]DiscountPolicyRow, error) {
	var rows []DiscountPolicyRow
	if err := c.get(ctx, "discount_policies", "/admin/policies/discount/active", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ActiveShippingPolicies lists shipping policies flagged active by the backend.
func (c *Client) ActiveShippingPolicies(ctx context.Context) ([]ShippingPolicyRow, error) {
	var rows []ShippingPolicyRow
	if err := c.get(ctx, "shipping_policies", "/admin/policies/shipping/active", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Quote requests the server-computed breakdown for a cart.
func (c *Client) Quote(ctx context.Context, req PricingRequest) (*Quote, error) {
	var quote Quote
	if err := c.post(ctx, "pricing", "/orders/pricing", nil, req, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// Features lists storefront feature flags.
func (c *Client) Features(ctx context.Context) ([]FeatureFlag, error) {
	var flags []FeatureFlag
	if err := c.get(ctx, "features", "/admin/features", nil, &flags); err != nil {
		return nil, err
	}
	return flags, nil
}

// FeatureEnabled reports whether the named flag exists and is enabled.
func FeatureEnabled(flags []FeatureFlag, key string) bool {
	for _, f := range flags {
		if strings.EqualFold(f.Key, key) {
			return f.Enabled
		}
	}
	return false
}

// IdentifyCustomer finds or creates the customer by name and phone.
func (c *Client) IdentifyCustomer(ctx context.Context, name, phone string) (*Customer, error) {
	var customer Customer
	body := map[string]string{"name": name, "phone": phone}
	if err := c.post(ctx, "identify_customer", "/customers/identify", nil, body, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CustomerProfile loads the customer's block status and saved addresses.
func (c *Client) CustomerProfile(ctx context.Context, customerID int64) (*CustomerProfile, error) {
	var profile CustomerProfile
	path := "/customers/" + strconv.FormatInt(customerID, 10) + "/profile"
	if err := c.get(ctx, "customer_profile", path, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// AddAddress saves a new address for the customer.
func (c *Client) AddAddress(ctx context.Context, customerID int64, in AddressInput) (*Address, error) {
	var addr Address
	path := "/customers/" + strconv.FormatInt(customerID, 10) + "/addresses"
	if err := c.post(ctx, "add_address", path, nil, in, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// UpdateAddress replaces an existing address.
func (c *Client) UpdateAddress(ctx context.Context, customerID, addressID int64, in AddressInput) (*Address, error) {
	var addr Address
	path := "/customers/" + strconv.FormatInt(customerID, 10) + "/addresses/" + strconv.FormatInt(addressID, 10)
	if err := c.do(ctx, "update_address", http.MethodPut, path, nil, in, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// CreateDeliveryOrder places a delivery order to the given address.
func (c *Client) CreateDeliveryOrder(ctx context.Context, customerID, addressID int64, in OrderInput) (*Order, error) {
	var order Order
	query := url.Values{}
	query.Set("customerId", strconv.FormatInt(customerID, 10))
	query.Set("addressId", strconv.FormatInt(addressID, 10))
	if err := c.post(ctx, "create_order", "/orders", query, in, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreatePickupOrder places an in-store pickup order.
func (c *Client) CreatePickupOrder(ctx context.Context, customerID int64, in OrderInput) (*Order, error) {
	var order Order
	query := url.Values{}
	query.Set("customerId", strconv.FormatInt(customerID, 10))
	if err := c.post(ctx, "create_pickup_order", "/orders/pickup", query, in, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PaymentByOrder returns the payment already attached to an order, or nil when none exists.
func (c *Client) PaymentByOrder(ctx context.Context, orderID int64) (*Payment, error) {
	var payment Payment
	query := url.Values{}
	query.Set("orderId", strconv.FormatInt(orderID, 10))
	if err := c.get(ctx, "payment_by_order", "/payments/by-order", query, &payment); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if payment.PaymentID == 0 {
		return nil, nil
	}
	return &payment, nil
}

// CreatePayment opens a payment for an order.
func (c *Client) CreatePayment(ctx context.Context, orderID int64, in PaymentInput) (*Payment, error) {
	var payment Payment
	query := url.Values{}
	query.Set("orderId", strconv.FormatInt(orderID, 10))
	if err := c.post(ctx, "create_payment", "/payments", query, in, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Ping checks backend reachability through the feature flag listing.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Features(ctx)
	return err
}
