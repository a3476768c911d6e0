package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/cart"
	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
	"github.com/noah-isme/chaldduk-checkout/internal/pricing"
)

type staticCatalog struct {
	cat *catalog.Catalog
	err error
}

func (s staticCatalog) Load(context.Context) (*catalog.Catalog, error) {
	return s.cat, s.err
}

type sessionResponse struct {
	Data cart.Session `json:"data"`
}

func newRouter(t *testing.T) (http.Handler, *cart.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &cart.Store{R: rdb, TTL: time.Hour}
	svc := &cart.Service{Store: store, Catalog: staticCatalog{cat: &catalog.Catalog{Products: []catalog.Product{
		product(1, 10, 2),
		product(2, 1, 0),
	}}}}
	h := &cart.Handler{Store: store, Svc: svc}

	r := chi.NewRouter()
	r.Post("/carts", h.Create)
	r.Get("/carts/{id}", h.Get)
	r.Post("/carts/{id}/items", h.ChangeItem)
	r.Delete("/carts/{id}", h.Delete)
	return r, store, mr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCartLifecycle(t *testing.T) {
	h, _, mr := newRouter(t)

	rec := do(t, h, http.MethodPost, "/carts", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	require.True(t, mr.TTL("cart:session:"+created.Data.ID) > 0)

	path := "/carts/" + created.Data.ID
	rec = do(t, h, http.MethodPost, path+"/items", `{"productId":1,"delta":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, 3, updated.Data.Cart.Qty(1))

	rec = do(t, h, http.MethodPost, path+"/items", `{"productId":1,"delta":6}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "STOCK_INSUFFICIENT")

	rec = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, 3, fetched.Data.Cart.Qty(1), "rejected change leaves state untouched")

	rec = do(t, h, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeItemValidation(t *testing.T) {
	h, store, _ := newRouter(t)
	sess, err := store.Create(context.Background())
	require.NoError(t, err)
	path := "/carts/" + sess.ID + "/items"

	rec := do(t, h, http.MethodPost, path, `{"productId":1,"delta":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "delta")

	rec = do(t, h, http.MethodPost, path, `{"productId":99,"delta":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/carts/not-a-uuid/items", `{"productId":1,"delta":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaleProductCanStillBeRemoved(t *testing.T) {
	_, store, _ := newRouter(t)
	sess, err := store.Create(context.Background())
	require.NoError(t, err)
	_, err = store.Update(context.Background(), sess.ID, func(c cart.Cart) (cart.Cart, error) {
		return cart.Cart{Lines: []cart.Line{{ProductID: 77, Qty: 2}}}, nil
	})
	require.NoError(t, err)

	svc := &cart.Service{Store: store, Catalog: staticCatalog{cat: &catalog.Catalog{}}}
	out, err := svc.ChangeQuantity(context.Background(), sess.ID, 77, -1)
	require.NoError(t, err)
	require.True(t, out.Cart.Empty())
}

func TestStoreReset(t *testing.T) {
	_, store, _ := newRouter(t)
	sess, err := store.Create(context.Background())
	require.NoError(t, err)
	_, err = store.Update(context.Background(), sess.ID, func(c cart.Cart) (cart.Cart, error) {
		return c.ChangeQuantity(product(1, 10, 0), 2)
	})
	require.NoError(t, err)

	_, err = store.SetPending(context.Background(), sess.ID, &cart.PendingOrder{OrderID: 100, OrderNo: "CD-0001"})
	require.NoError(t, err)

	reset, err := store.Reset(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, reset.Cart.Empty())
	require.Nil(t, reset.Pending)
	require.Equal(t, sess.ID, reset.ID)
}

func TestStorePendingOrderRoundTrip(t *testing.T) {
	_, store, _ := newRouter(t)
	ctx := context.Background()
	sess, err := store.Create(ctx)
	require.NoError(t, err)
	sess, err = store.Update(ctx, sess.ID, func(c cart.Cart) (cart.Cart, error) {
		return c.ChangeQuantity(product(1, 10, 0), 2)
	})
	require.NoError(t, err)

	pending := &cart.PendingOrder{
		OrderID:       100,
		OrderNo:       "CD-0001",
		CustomerID:    7,
		Fulfillment:   "PICKUP",
		PaymentMethod: "CARD",
		Lines:         sess.Cart.Lines,
		FinalAmount:   24_000,
	}
	_, err = store.SetPending(ctx, sess.ID, pending)
	require.NoError(t, err)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, pending, got.Pending)
	require.True(t, got.Pending.Matches(7, got.Cart, "PICKUP", "CARD"))
	require.False(t, got.Pending.Matches(8, got.Cart, "PICKUP", "CARD"), "another customer")
	require.False(t, got.Pending.Matches(7, got.Cart, "DELIVERY", "CARD"))
	require.False(t, got.Pending.Matches(7, got.Cart, "PICKUP", "BANK_TRANSFER"))

	changed, err := got.Cart.ChangeQuantity(product(1, 10, 0), 1)
	require.NoError(t, err)
	require.False(t, got.Pending.Matches(7, changed, "PICKUP", "CARD"), "cart changed since the order")

	var none *cart.PendingOrder
	require.False(t, none.Matches(7, got.Cart, "PICKUP", "CARD"))
}

func TestDeleteForgetsSummaryTickets(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	store := &cart.Store{R: rdb, TTL: time.Hour}
	tracker := &pricing.Tracker{R: rdb, TTL: time.Hour}
	h := &cart.Handler{Store: store, Forget: []cart.Forgetter{tracker}}
	r := chi.NewRouter()
	r.Delete("/carts/{id}", h.Delete)

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	seq, err := tracker.Begin(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists("pricing:seq:"+sess.ID))

	rec := do(t, r, http.MethodDelete, "/carts/"+sess.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, mr.Exists("pricing:seq:"+sess.ID))
	require.False(t, tracker.Latest(ctx, sess.ID, seq))

	rec = do(t, r, http.MethodDelete, "/carts/"+sess.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
