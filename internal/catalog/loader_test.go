package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/catalog"
	"github.com/noah-isme/chaldduk-checkout/internal/discount"
)

type fakeSource struct {
	products    []backend.ProductRow
	policies    []backend.DiscountPolicyRow
	productErr  error
	discountErr error
	calls       atomic.Int32
}

func (f *fakeSource) Products(context.Context) ([]backend.ProductRow, error) {
	f.calls.Add(1)
	return f.products, f.productErr
}

func (f *fakeSource) ActiveDiscountPolicies(context.Context) ([]backend.DiscountPolicyRow, error) {
	return f.policies, f.discountErr
}

func boolPtr(v bool) *bool { return &v }

func wonPtr(v int64) *backend.Won {
	w := backend.Won(v)
	return &w
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, backend.Location)

func sampleProducts() []backend.ProductRow {
	return []backend.ProductRow{
		{ProductID: 1, Name: "찰떡", Price: 10_000, StockQty: 20, SafetyStock: 2, SoldOutStatus: "IN_STOCK"},
		{ProductID: 2, Name: "쿠키", Price: 3_000, StockQty: 3, SafetyStock: 3, SoldOutStatus: "LOW_STOCK"},
		{ProductID: 3, Name: "케이크", Price: 30_000, StockQty: 5, SafetyStock: 0, Active: boolPtr(false)},
		{ProductID: 4, Name: "빵", Price: 4_000, StockQty: 5, SafetyStock: 0, DeletedAt: &backend.Timestamp{Time: fixedNow}},
		{ProductID: 5, Name: "음료", Price: 2_500, StockQty: 9, SafetyStock: 1, Active: boolPtr(true)},
	}
}

func samplePolicies() []backend.DiscountPolicyRow {
	return []backend.DiscountPolicyRow{
		{
			ID: 1, Name: "상시", Active: true,
			Rules: []backend.DiscountRuleRow{
				{ID: 10, Type: "QTY_RATE", Label: "3개 10%", TargetProductID: 1, DiscountRate: decPtr(10), MinQty: 3, Active: true},
				{ID: 11, Type: "BANK_TRANSFER_FIXED", Label: "계좌 2,000", TargetProductID: 1, AmountOff: wonPtr(2_000), MinQty: 1, Active: true},
				{ID: 12, Type: "BANK_TRANSFER_RATE", Label: "계좌 픽업 5%", TargetProductID: 5, DiscountRate: decPtr(5), Active: true, ApplyScope: "pickup"},
				{ID: 13, Type: "QTY_FIXED", Label: "gone", TargetProductID: 99, AmountOff: wonPtr(100), Active: true},
				{ID: 14, Type: "QTY_FIXED", Label: "off", TargetProductID: 1, AmountOff: wonPtr(100), Active: false},
				{ID: 15, Type: "QTY_RATE", Label: "no value", TargetProductID: 1, Active: true},
			},
		},
		{
			ID: 2, Name: "지난 행사", Active: true,
			EndAt: backend.Timestamp{Time: fixedNow.Add(-time.Hour)},
			Rules: []backend.DiscountRuleRow{
				{ID: 20, Type: "QTY_FIXED", Label: "expired", TargetProductID: 1, AmountOff: wonPtr(500), Active: true},
			},
		},
	}
}

func TestLoadMergesRulesByChannel(t *testing.T) {
	src := &fakeSource{products: sampleProducts(), policies: samplePolicies()}
	loader := &catalog.Loader{Source: src, Now: func() time.Time { return fixedNow }}

	cat, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cat.Products, 2, "sold out, inactive and deleted products are filtered")

	tteok, ok := cat.Find(1)
	require.True(t, ok)
	require.Equal(t, 18, tteok.Available())
	require.Len(t, tteok.Qty, 1)
	require.Equal(t, discount.KindRate, tteok.Qty[0].Kind)
	require.Len(t, tteok.Bank, 1)
	require.Equal(t, discount.Money(2_000), tteok.Bank[0].Amount)

	drink, ok := cat.Find(5)
	require.True(t, ok)
	require.Empty(t, drink.Qty)
	require.Len(t, drink.Bank, 1)
	require.Equal(t, discount.ScopePickup, drink.Bank[0].Scope)

	_, ok = cat.Find(2)
	require.False(t, ok)
}

func TestEveryMergedRuleLandsInExactlyOneChannel(t *testing.T) {
	policies := samplePolicies()
	cat := catalog.Merge(sampleProducts(), policies, fixedNow, nil)
	for _, p := range cat.Products {
		for _, r := range p.Bank {
			for _, q := range p.Qty {
				require.NotEqual(t, r.Label, q.Label)
			}
		}
	}
	require.True(t, catalog.IsBankTransferRule("BANK_TRANSFER_RATE"))
	require.True(t, catalog.IsBankTransferRule("bank_transfer_fixed"))
	require.False(t, catalog.IsBankTransferRule("QTY_RATE"))
}

func TestLoadDiscountFeedFailureKeepsProducts(t *testing.T) {
	src := &fakeSource{products: sampleProducts(), discountErr: errors.New("timeout")}
	loader := &catalog.Loader{Source: src, Now: func() time.Time { return fixedNow }}

	cat, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cat.Products, 2)
	for _, p := range cat.Products {
		require.True(t, p.Set.Empty())
	}
}

func TestLoadProductFeedFailure(t *testing.T) {
	src := &fakeSource{productErr: backend.ErrUpstream}
	loader := &catalog.Loader{Source: src}

	_, err := loader.Load(context.Background())
	require.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	require.ErrorIs(t, err, backend.ErrUpstream)
}

func TestLoadUsesSnapshotCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &fakeSource{products: sampleProducts(), policies: samplePolicies()}
	loader := &catalog.Loader{Source: src, Cache: catalog.NewCache(rdb, time.Minute), Now: func() time.Time { return fixedNow }}

	first, err := loader.Load(context.Background())
	require.NoError(t, err)
	second, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())
	require.Equal(t, first.Products[0].Bank[0].Amount, second.Products[0].Bank[0].Amount)
	require.True(t, first.Products[0].Qty[0].Percent.Equal(second.Products[0].Qty[0].Percent))

	require.NoError(t, loader.Cache.Invalidate(context.Background()))
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestHandlerList(t *testing.T) {
	h := &catalog.Handler{Catalog: &catalog.Loader{Source: &fakeSource{products: sampleProducts()}, Now: func() time.Time { return fixedNow }}}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []catalog.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)

	failing := &catalog.Handler{Catalog: &catalog.Loader{Source: &fakeSource{productErr: errors.New("down")}}}
	rec = httptest.NewRecorder()
	failing.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "CATALOG_UNAVAILABLE")
}
