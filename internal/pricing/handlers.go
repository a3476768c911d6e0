package pricing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/chaldduk-checkout/internal/cart"
	"github.com/noah-isme/chaldduk-checkout/internal/common"
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
	"github.com/noah-isme/chaldduk-checkout/internal/obs"
)

// Handler serves order summaries for cart sessions.
type Handler struct {
	Store   *cart.Store
	Svc     *Service
	Tracker *Tracker
}

type summaryRequest struct {
	PaymentMethod   string `json:"paymentMethod" validate:"required,oneof=BANK_TRANSFER CARD bank_transfer card"`
	FulfillmentType string `json:"fulfillmentType" validate:"required,oneof=PICKUP DELIVERY pickup delivery"`
	ZipCode         string `json:"zipCode" validate:"omitempty,max=10"`
}

type summaryResponse struct {
	Data     *Breakdown `json:"data"`
	Degraded bool       `json:"degraded"`
	Seq      uint64     `json:"seq"`
	Stale    bool       `json:"stale"`
}

// Summary handles POST /api/v1/carts/{id}/summary. Remote failures degrade to
// a null summary; a result superseded by a newer request is discarded.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "pricing not configured", nil)
		return
	}
	var req summaryRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ctx := r.Context()
	cartID := chi.URLParam(r, "id")
	sess, err := h.Store.Get(ctx, cartID)
	if err != nil {
		common.WriteError(w, cart.MapError(err))
		return
	}

	var seq uint64
	if h.Tracker != nil {
		seq, err = h.Tracker.Begin(ctx, sess.ID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("pricing sequence unavailable")
		}
	}

	bd, err := h.Svc.Summarize(ctx, Input{
		Cart:        sess.Cart,
		Payment:     discount.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		Fulfillment: discount.Fulfillment(strings.ToUpper(req.FulfillmentType)),
		Zip:         req.ZipCode,
	})
	resp := summaryResponse{Data: bd, Seq: seq}
	if err != nil {
		if !errors.Is(err, ErrQuoteUnavailable) {
			common.WriteError(w, err)
			return
		}
		resp.Data, resp.Degraded = nil, true
	}
	if h.Tracker != nil && seq != 0 && !h.Tracker.Latest(ctx, sess.ID, seq) {
		obs.RecordPricingStale()
		zerolog.Ctx(ctx).Debug().Uint64("seq", seq).Msg("stale pricing result discarded")
		resp.Data, resp.Stale = nil, true
	}
	common.JSON(w, http.StatusOK, resp)
}
