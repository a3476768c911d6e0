package shipping

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/noah-isme/chaldduk-checkout/internal/common"
)

// Handler exposes fee estimation for the address step.
type Handler struct {
	Svc        *Service
	DefaultFee int64
}

// Estimate handles GET /api/v1/shipping/fee?subtotal=&zip=.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "shipping service not configured", nil)
		return
	}
	q := r.URL.Query()
	subtotal, err := strconv.ParseInt(strings.TrimSpace(q.Get("subtotal")), 10, 64)
	if err != nil || subtotal < 0 {
		common.WriteError(w, common.BadRequest("subtotal", "subtotal must be a non-negative integer", err))
		return
	}
	res, err := h.Svc.DeliveryFee(r.Context(), subtotal, q.Get("zip"), h.DefaultFee)
	common.JSON(w, http.StatusOK, map[string]any{
		"data":     res,
		"degraded": err != nil,
	})
}
