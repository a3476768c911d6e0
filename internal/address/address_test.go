package address_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chaldduk-checkout/internal/address"
	"github.com/noah-isme/chaldduk-checkout/internal/backend"
)

func TestComposeDetail(t *testing.T) {
	require.Equal(t, "101동 202호\n공동현관: 1234", address.ComposeDetail(" 101동 202호 ", " 1234 "))
	require.Equal(t, "공동현관: 1234", address.ComposeDetail("", "1234"))
	require.Equal(t, "101동 202호", address.ComposeDetail("101동 202호", "  "))
}

func TestSplitDetail(t *testing.T) {
	cases := []struct {
		stored, detail, code string
	}{
		{"101동 202호\n공동현관: 1234", "101동 202호", "1234"},
		{"101동 202호\n공동현관 #5678", "101동 202호", ""},
		{"101동 202호\n공동현관5678", "101동 202호", "5678"},
		{"공동현관: 0000", "", "0000"},
		{"101동 202호", "101동 202호", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		detail, code := address.SplitDetail(tc.stored)
		require.Equal(t, tc.detail, detail, tc.stored)
		require.Equal(t, tc.code, code, tc.stored)
	}
}

func TestComposeSplitRoundTrip(t *testing.T) {
	detail, code := address.SplitDetail(address.ComposeDetail("3층", "9876"))
	require.Equal(t, "3층", detail)
	require.Equal(t, "9876", code)
}

type fakeBackend struct {
	profile *backend.CustomerProfile
	err     error
	added   []backend.AddressInput
	updated map[int64]backend.AddressInput
}

func (f *fakeBackend) CustomerProfile(context.Context, int64) (*backend.CustomerProfile, error) {
	return f.profile, f.err
}

func (f *fakeBackend) AddAddress(_ context.Context, _ int64, in backend.AddressInput) (*backend.Address, error) {
	f.added = append(f.added, in)
	return &backend.Address{AddressID: 100 + int64(len(f.added))}, nil
}

func (f *fakeBackend) UpdateAddress(_ context.Context, _ int64, id int64, in backend.AddressInput) (*backend.Address, error) {
	if f.updated == nil {
		f.updated = map[int64]backend.AddressInput{}
	}
	f.updated[id] = in
	return &backend.Address{AddressID: id}, nil
}

func TestBookSaveCreatesWithDefaults(t *testing.T) {
	fb := &fakeBackend{}
	book := &address.Book{Backend: fb}

	saved, err := book.Save(context.Background(), 7, address.Entry{
		ZipCode:      "63001",
		Address1:     "제주특별자치도 제주시 1",
		Address2:     "101호",
		EntranceCode: "1234",
	}, "홍길동", "01012345678")
	require.NoError(t, err)
	require.Equal(t, int64(101), saved.AddressID)
	require.Equal(t, []backend.AddressInput{{
		Label:          "집",
		RecipientName:  "홍길동",
		RecipientPhone: "01012345678",
		ZipCode:        "63001",
		Address1:       "제주특별자치도 제주시 1",
		Address2:       "101호\n공동현관: 1234",
		IsDefault:      true,
	}}, fb.added)
}

func TestBookSaveUpdatesExisting(t *testing.T) {
	fb := &fakeBackend{}
	book := &address.Book{Backend: fb}
	notDefault := false

	saved, err := book.Save(context.Background(), 7, address.Entry{ID: 55, Label: "회사", Address1: "a", Address2: "b", IsDefault: &notDefault}, "n", "p")
	require.NoError(t, err)
	require.Equal(t, int64(55), saved.AddressID)
	require.Empty(t, fb.added)
	require.Equal(t, "회사", fb.updated[55].Label)
	require.False(t, fb.updated[55].IsDefault)
}

func TestBookSaveRequiresBothLines(t *testing.T) {
	book := &address.Book{Backend: &fakeBackend{}}
	_, err := book.Save(context.Background(), 7, address.Entry{Address1: "a"}, "n", "p")
	require.ErrorIs(t, err, address.ErrIncomplete)
	_, err = book.Save(context.Background(), 7, address.Entry{Address2: "b"}, "n", "p")
	require.ErrorIs(t, err, address.ErrIncomplete)
}

func TestBookDefaultSplitsEntranceCode(t *testing.T) {
	fb := &fakeBackend{profile: &backend.CustomerProfile{Addresses: []backend.Address{
		{AddressID: 1, Address1: "first", Address2: "1층", ZipCode: "11111"},
		{AddressID: 2, Address1: "second", Address2: "2층\n공동현관: 4321", ZipCode: "22222", IsDefault: true},
	}}}
	book := &address.Book{Backend: fb}

	entry, err := book.Default(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), entry.ID)
	require.Equal(t, "2층", entry.Address2)
	require.Equal(t, "4321", entry.EntranceCode)

	res, err := book.LookupFor(7).Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, address.Result{Line1: "second", Zip: "22222"}, res)
}

func TestLookupWithoutAddresses(t *testing.T) {
	book := &address.Book{Backend: &fakeBackend{profile: &backend.CustomerProfile{}}}
	entry, err := book.Default(context.Background(), 7)
	require.NoError(t, err)
	require.Nil(t, entry)

	_, err = book.LookupFor(7).Open(context.Background())
	require.ErrorIs(t, err, address.ErrNoAddress)

	failing := &address.Book{Backend: &fakeBackend{err: errors.New("down")}}
	_, err = failing.LookupFor(7).Open(context.Background())
	require.Error(t, err)
}
