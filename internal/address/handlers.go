package address

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/common"
)

// Handler exposes the saved address used to prefill the delivery form.
type Handler struct {
	Book *Book
}

// Default handles GET /api/v1/customers/{customerId}/address.
func (h *Handler) Default(w http.ResponseWriter, r *http.Request) {
	if h.Book == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "address book not configured", nil)
		return
	}
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		common.WriteError(w, common.BadRequest("customerId", "invalid customer id", err))
		return
	}
	entry, err := h.Book.Default(r.Context(), customerID)
	if err != nil {
		if backend.IsStatus(err, http.StatusNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "customer not found", nil)
			return
		}
		common.WriteError(w, common.NewAppError(common.CodeUpstream, "address lookup failed", http.StatusBadGateway, err))
		return
	}
	common.Data(w, http.StatusOK, entry)
}
