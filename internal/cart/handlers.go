package cart

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
	"github.com/noah-isme/chaldduk-checkout/internal/common"
)

// Forgetter drops state kept elsewhere for a session, such as summary tickets.
type Forgetter interface {
	Forget(ctx context.Context, sessionID string)
}

// Handler wires cart sessions to HTTP.
type Handler struct {
	Store  *Store
	Svc    *Service
	Forget []Forgetter
}

type changeRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Delta     int   `json:"delta" validate:"ne=0"`
}

// Create handles POST /api/v1/carts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart store not configured", nil)
		return
	}
	sess, err := h.Store.Create(r.Context())
	if err != nil {
		common.WriteError(w, MapError(err))
		return
	}
	common.Data(w, http.StatusCreated, sess)
}

// Get handles GET /api/v1/carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart store not configured", nil)
		return
	}
	sess, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, MapError(err))
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// ChangeItem handles POST /api/v1/carts/{id}/items with a signed quantity delta.
func (h *Handler) ChangeItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	var req changeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.ChangeQuantity(r.Context(), chi.URLParam(r, "id"), req.ProductID, req.Delta)
	if err != nil {
		common.WriteError(w, MapError(err))
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// Delete handles DELETE /api/v1/carts/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart store not configured", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Store.Delete(r.Context(), id); err != nil {
		common.WriteError(w, MapError(err))
		return
	}
	for _, f := range h.Forget {
		f.Forget(r.Context(), id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// MapError converts cart errors into API errors.
func MapError(err error) error {
	switch {
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrStockInsufficient):
		return common.NewAppError("STOCK_INSUFFICIENT", "requested quantity exceeds available stock", http.StatusConflict, err)
	case errors.Is(err, ErrNotFound):
		return common.NewAppError(common.CodeNotFound, "cart not found", http.StatusNotFound, err)
	case errors.Is(err, ErrUnknownProduct):
		return common.NewAppError(common.CodeNotFound, "product is not available", http.StatusNotFound, err)
	case errors.Is(err, ErrConflict):
		return common.NewAppError(common.CodeConflict, "cart was modified concurrently, retry", http.StatusConflict, err)
	default:
		return catalog.MapError(err)
	}
}
