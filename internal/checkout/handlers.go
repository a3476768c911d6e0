package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/chaldduk-checkout/internal/address"
	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/cart"
	"github.com/noah-isme/chaldduk-checkout/internal/common"
	"github.com/noah-isme/chaldduk-checkout/internal/lock"
	"github.com/noah-isme/chaldduk-checkout/internal/pricing"
)

type Handler struct {
	Svc *Service
}

// Submit handles POST /api/v1/carts/{id}/orders.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var payload Input
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Submit(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		common.WriteError(w, MapError(err))
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// MapError converts checkout errors into API errors.
func MapError(err error) error {
	switch {
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrInvalidPhone):
		return common.BadRequest("buyerPhone", err.Error(), err)
	case errors.Is(err, ErrInvalidReceipt):
		return common.BadRequest("receiptValue", err.Error(), err)
	case errors.Is(err, address.ErrIncomplete):
		return common.BadRequest("address", "address1 and address2 are required for delivery", err)
	case errors.Is(err, ErrEmptyCart):
		return common.NewAppError("CART_EMPTY", "cart is empty", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrOrderingDisabled):
		return common.NewAppError("ORDERING_DISABLED", "ordering is not open right now", http.StatusForbidden, err)
	case errors.Is(err, ErrBankTransferDisabled):
		return common.NewAppError("BANK_TRANSFER_DISABLED", "bank transfer is not available right now", http.StatusForbidden, err)
	case errors.Is(err, ErrCustomerBlocked):
		return common.NewAppError("CUSTOMER_BLOCKED", "customer cannot place orders", http.StatusForbidden, err)
	case errors.Is(err, ErrNoSummary), errors.Is(err, pricing.ErrQuoteUnavailable):
		return common.NewAppError(common.CodeUpstream, "order summary unavailable, retry", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrPaymentFailed):
		return common.NewAppError("PAYMENT_FAILED", "order was created but its payment was not; contact the store", http.StatusBadGateway, err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.NewAppError(common.CodeConflict, "order for this cart is already being submitted", http.StatusConflict, err)
	case errors.Is(err, cart.ErrNotFound):
		return cart.MapError(err)
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "bakery backend rejected the request"
		}
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return common.NewAppError("ORDER_REJECTED", msg, http.StatusUnprocessableEntity, err)
		}
		return common.NewAppError(common.CodeUpstream, msg, http.StatusBadGateway, err)
	}
	return common.NewAppError(common.CodeInternal, "order submission failed", http.StatusInternalServerError, err)
}
