package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/common"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdemRejectsReplay(t *testing.T) {
	idem := common.Idem{R: newRedis(t), TTL: time.Minute}
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set(common.IdempotencyHeader, "abc")

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req.Clone(req.Context()))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req.Clone(req.Context()))
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, calls)
}

func TestIdemScopesKeys(t *testing.T) {
	idem := common.Idem{
		R:     newRedis(t),
		TTL:   time.Minute,
		Scope: func(r *http.Request) string { return r.URL.Query().Get("cart") },
	}
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, cart := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/orders?cart="+cart, nil)
		req.Header.Set(common.IdempotencyHeader, "same")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "cart %s", cart)
	}
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem := common.Idem{R: newRedis(t), TTL: time.Minute}
	fail := true
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set(common.IdempotencyHeader, "retry-me")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.Clone(req.Context()))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	fail = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, common.BadRequest("zipCode", "zipCode is invalid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeValidation)
	require.Contains(t, rec.Body.String(), "zipCode")

	rec = httptest.NewRecorder()
	common.WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")
}
