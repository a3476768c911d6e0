package catalog

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/chaldduk-checkout/internal/common"
)

// Provider loads the merged catalog.
type Provider interface {
	Load(ctx context.Context) (*Catalog, error)
}

// Handler exposes the storefront catalog.
type Handler struct {
	Catalog Provider
}

// List handles GET /api/v1/catalog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog not configured", nil)
		return
	}
	cat, err := h.Catalog.Load(r.Context())
	if err != nil {
		common.WriteError(w, MapError(err))
		return
	}
	common.Data(w, http.StatusOK, cat.Products)
}

// MapError converts catalog errors into API errors.
func MapError(err error) error {
	if errors.Is(err, ErrCatalogUnavailable) {
		return common.NewAppError("CATALOG_UNAVAILABLE", "catalog is temporarily unavailable", http.StatusServiceUnavailable, err)
	}
	return err
}
