package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the cart session does not exist or has expired.
	ErrNotFound = errors.New("cart not found")
	// ErrConflict is returned when concurrent writers kept racing on the same session.
	ErrConflict = errors.New("cart modified concurrently")
)

const (
	keyPrefix     = "cart:session:"
	updateRetries = 5
)

// Session is a cart stored under an opaque id.
type Session struct {
	ID        string        `json:"id"`
	Cart      Cart          `json:"cart"`
	Pending   *PendingOrder `json:"pendingOrder,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// PendingOrder is an order already placed for the session whose payment has
// not been opened yet. Lines is the cart it was placed for.
type PendingOrder struct {
	OrderID        int64  `json:"orderId"`
	OrderNo        string `json:"orderNo"`
	CustomerID     int64  `json:"customerId"`
	Fulfillment    string `json:"fulfillmentType"`
	PaymentMethod  string `json:"paymentMethod"`
	Lines          []Line `json:"items"`
	SubtotalAmount int64  `json:"subtotalAmount"`
	DiscountAmount int64  `json:"discountAmount"`
	DeliveryFee    int64  `json:"deliveryFee"`
	FinalAmount    int64  `json:"finalAmount"`
}

// Matches reports whether the pending order was placed by the customer for
// the same cart, fulfillment and payment method.
func (p *PendingOrder) Matches(customerID int64, c Cart, fulfillment, paymentMethod string) bool {
	if p == nil || p.OrderID == 0 || p.CustomerID != customerID {
		return false
	}
	if p.Fulfillment != fulfillment || p.PaymentMethod != paymentMethod {
		return false
	}
	return slices.Equal(p.Lines, c.Lines)
}

// Store persists cart sessions in Redis as JSON with a sliding TTL.
type Store struct {
	R   *redis.Client
	TTL time.Duration
	Now func() time.Time
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func (s *Store) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func sessionKey(id string) string {
	return keyPrefix + id
}

// Create starts an empty session.
func (s *Store) Create(ctx context.Context) (Session, error) {
	if s == nil || s.R == nil {
		return Session{}, errors.New("cart store not configured")
	}
	sess := Session{ID: uuid.NewString(), Cart: Cart{Lines: []Line{}}, UpdatedAt: s.now()}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	if err := s.R.Set(ctx, sessionKey(sess.ID), data, s.ttl()).Err(); err != nil {
		return Session{}, fmt.Errorf("create cart session: %w", err)
	}
	return sess, nil
}

// Get loads a session.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	if s == nil || s.R == nil {
		return Session{}, errors.New("cart store not configured")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrNotFound
	}
	return s.read(ctx, s.R, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) read(ctx context.Context, r getter, id string) (Session, error) {
	data, err := r.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("load cart session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode cart session: %w", err)
	}
	if sess.Cart.Lines == nil {
		sess.Cart.Lines = []Line{}
	}
	return sess, nil
}

// Update applies fn to the stored cart under optimistic locking. When fn
// returns an error nothing is written and the error is returned with the
// unchanged session.
func (s *Store) Update(ctx context.Context, id string, fn func(Cart) (Cart, error)) (Session, error) {
	return s.modify(ctx, id, func(sess *Session) error {
		next, err := fn(sess.Cart)
		if err != nil {
			return err
		}
		sess.Cart = next
		return nil
	})
}

// Reset empties the cart and drops any pending order but keeps the session alive.
func (s *Store) Reset(ctx context.Context, id string) (Session, error) {
	return s.modify(ctx, id, func(sess *Session) error {
		sess.Cart = Cart{Lines: []Line{}}
		sess.Pending = nil
		return nil
	})
}

// SetPending records, or with nil clears, the session's pending order.
func (s *Store) SetPending(ctx context.Context, id string, pending *PendingOrder) (Session, error) {
	return s.modify(ctx, id, func(sess *Session) error {
		sess.Pending = pending
		return nil
	})
}

func (s *Store) modify(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	if s == nil || s.R == nil {
		return Session{}, errors.New("cart store not configured")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrNotFound
	}
	key := sessionKey(id)
	var result Session
	var fnErr error
	txf := func(tx *redis.Tx) error {
		sess, err := s.read(ctx, tx, id)
		if err != nil {
			return err
		}
		unchanged := sess
		if err := fn(&sess); err != nil {
			result, fnErr = unchanged, err
			return nil
		}
		sess.UpdatedAt = s.now()
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl())
			return nil
		})
		if err == nil {
			result = sess
		}
		return err
	}

	for attempt := 0; attempt < updateRetries; attempt++ {
		fnErr = nil
		err := s.R.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Session{}, err
		}
		return result, fnErr
	}
	return Session{}, ErrConflict
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.R == nil {
		return errors.New("cart store not configured")
	}
	n, err := s.R.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete cart session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
