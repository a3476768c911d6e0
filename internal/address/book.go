package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/chaldduk-checkout/internal/backend"
)

var (
	// ErrIncomplete is returned when a delivery address lacks either line.
	ErrIncomplete = errors.New("delivery address incomplete")
	// ErrNoAddress is returned by a lookup when the customer has no saved address.
	ErrNoAddress = errors.New("no saved address")
)

const defaultLabel = "집"

// Backend is the subset of the bakery API the address book needs.
type Backend interface {
	CustomerProfile(ctx context.Context, customerID int64) (*backend.CustomerProfile, error)
	AddAddress(ctx context.Context, customerID int64, in backend.AddressInput) (*backend.Address, error)
	UpdateAddress(ctx context.Context, customerID, addressID int64, in backend.AddressInput) (*backend.Address, error)
}

// Entry is a delivery address with the entrance code kept apart from the detail line.
type Entry struct {
	ID             int64  `json:"addressId,omitempty"`
	Label          string `json:"label,omitempty"`
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	ZipCode        string `json:"zipCode,omitempty"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	EntranceCode   string `json:"entranceCode,omitempty"`
	IsDefault      *bool  `json:"isDefault,omitempty"`
}

// Book reads and writes customer addresses through the backend.
type Book struct {
	Backend Backend
}

// Default returns the customer's default address, else the first one. It
// returns nil when none is saved.
func (b *Book) Default(ctx context.Context, customerID int64) (*Entry, error) {
	if b == nil || b.Backend == nil {
		return nil, errors.New("address book not configured")
	}
	profile, err := b.Backend.CustomerProfile(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer profile: %w", err)
	}
	if profile == nil || len(profile.Addresses) == 0 {
		return nil, nil
	}
	chosen := profile.Addresses[0]
	for _, a := range profile.Addresses {
		if a.IsDefault {
			chosen = a
			break
		}
	}
	entry := fromBackend(chosen)
	return &entry, nil
}

// Save updates the address when it has an id and creates it otherwise. The
// recipient defaults to the buyer.
func (b *Book) Save(ctx context.Context, customerID int64, e Entry, buyerName, buyerPhone string) (*backend.Address, error) {
	if b == nil || b.Backend == nil {
		return nil, errors.New("address book not configured")
	}
	if strings.TrimSpace(e.Address1) == "" || strings.TrimSpace(e.Address2) == "" {
		return nil, ErrIncomplete
	}
	in := backend.AddressInput{
		Label:          firstNonEmpty(e.Label, defaultLabel),
		RecipientName:  firstNonEmpty(e.RecipientName, buyerName),
		RecipientPhone: firstNonEmpty(e.RecipientPhone, buyerPhone),
		ZipCode:        strings.TrimSpace(e.ZipCode),
		Address1:       strings.TrimSpace(e.Address1),
		Address2:       ComposeDetail(e.Address2, e.EntranceCode),
		IsDefault:      e.IsDefault == nil || *e.IsDefault,
	}
	var (
		saved *backend.Address
		err   error
	)
	if e.ID > 0 {
		saved, err = b.Backend.UpdateAddress(ctx, customerID, e.ID, in)
	} else {
		saved, err = b.Backend.AddAddress(ctx, customerID, in)
	}
	if err != nil {
		return nil, fmt.Errorf("save address: %w", err)
	}
	if saved == nil || saved.AddressID == 0 {
		return nil, errors.New("save address: backend returned no address id")
	}
	return saved, nil
}

// LookupFor resolves to the customer's default saved address.
func (b *Book) LookupFor(customerID int64) Lookup {
	return LookupFunc(func(ctx context.Context) (Result, error) {
		entry, err := b.Default(ctx, customerID)
		if err != nil {
			return Result{}, err
		}
		if entry == nil {
			return Result{}, ErrNoAddress
		}
		return Result{Line1: entry.Address1, Zip: entry.ZipCode}, nil
	})
}

func fromBackend(a backend.Address) Entry {
	detail, code := SplitDetail(a.Address2)
	isDefault := a.IsDefault
	return Entry{
		ID:             a.AddressID,
		Label:          a.Label,
		RecipientName:  a.RecipientName,
		RecipientPhone: a.RecipientPhone,
		ZipCode:        a.ZipCode,
		Address1:       a.Address1,
		Address2:       detail,
		EntranceCode:   code,
		IsDefault:      &isDefault,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
