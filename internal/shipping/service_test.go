package shipping_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
	"github.com/noah-isme/chaldduk-checkout/internal/shipping"
)

type fakeSource struct {
	rows []backend.ShippingPolicyRow
	err  error
}

func (f fakeSource) ActiveShippingPolicies(context.Context) ([]backend.ShippingPolicyRow, error) {
	return f.rows, f.err
}

func wonPtr(v int64) *backend.Won {
	w := backend.Won(v)
	return &w
}

func TestFromRowsNormalizesWireTypes(t *testing.T) {
	policies := shipping.FromRows([]backend.ShippingPolicyRow{{
		ID:     7,
		Active: true,
		Rules: []backend.ShippingRuleRow{
			{ID: 1, Type: "zip_prefix_fee", ZipPrefix: "63001", Fee: wonPtr(5_000), Active: true},
			{ID: 2, Type: "FREE_OVER_AMOUNT", FreeOverAmount: wonPtr(30_000), Active: true, ApplyScope: "pickup"},
		},
	}})
	require.Len(t, policies, 1)
	require.Equal(t, shipping.RuleZipMatch, policies[0].Rules[0].Type)
	require.Equal(t, shipping.ScopeAll, policies[0].Rules[0].Scope)
	require.Equal(t, int64(5_000), *policies[0].Rules[0].Fee)
	require.Nil(t, policies[0].Rules[0].FreeOverAmount)
	require.Equal(t, shipping.ScopePickup, policies[0].Rules[1].Scope)
}

func TestDeliveryFeeFallsBackWhenPoliciesUnavailable(t *testing.T) {
	svc := &shipping.Service{Source: fakeSource{err: errors.New("boom")}}
	res, err := svc.DeliveryFee(context.Background(), 10_000, "11111", 3_000)
	require.ErrorIs(t, err, shipping.ErrPolicyUnavailable)
	require.Equal(t, int64(3_000), res.Fee)
	require.Equal(t, shipping.CategoryUnavailable, res.Category)
}

func TestDeliveryFeeResolvesFetchedPolicies(t *testing.T) {
	svc := &shipping.Service{
		Source: fakeSource{rows: []backend.ShippingPolicyRow{{
			Active: true,
			Rules: []backend.ShippingRuleRow{
				{ID: 3, Type: "DEFAULT_FEE", Fee: wonPtr(2_500), Active: true, ApplyScope: "ALL"},
			},
		}}},
		Now: func() time.Time { return now },
	}
	res, err := svc.DeliveryFee(context.Background(), 10_000, "11111", 3_000)
	require.NoError(t, err)
	require.Equal(t, int64(2_500), res.Fee)
	require.Equal(t, shipping.CategoryDefaultFee, res.Category)
}

func TestEstimateHandler(t *testing.T) {
	h := &shipping.Handler{Svc: &shipping.Service{Source: fakeSource{err: errors.New("down")}}, DefaultFee: 3_000}

	rec := httptest.NewRecorder()
	h.Estimate(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shipping/fee?subtotal=12000&zip=63001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data     shipping.Resolution `json:"data"`
		Degraded bool                `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Degraded)
	require.Equal(t, int64(3_000), body.Data.Fee)

	rec = httptest.NewRecorder()
	h.Estimate(rec, httptest.NewRequest(http.MethodGet, "/api/v1/shipping/fee?subtotal=-1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
