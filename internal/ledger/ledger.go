// Package ledger is the authoritative record of the current bid per
// (collection, marketplace) key, backed by the shared state store. At most one
// pending/active bid may exist per key; the ledger performs no locking itself,
// all mutation happens inside serialized queue operations.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"bidsync/internal/store"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusInvalid   Status = "invalid"
	StatusExpired   Status = "expired"
)

// Bid is the persisted record of one standing bid.
type Bid struct {
	Collection  string    `json:"collection"`
	Marketplace string    `json:"marketplace"`
	Amount      string    `json:"amount"`
	QuoteID     string    `json:"quote_id"`
	OrderID     string    `json:"order_id,omitempty"`
	Expiration  time.Time `json:"expiration"`
	Status      Status    `json:"status"`
	Signature   string    `json:"signature,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Open reports whether the bid still occupies its key.
func (b *Bid) Open() bool {
	return b != nil && (b.Status == StatusPending || b.Status == StatusActive)
}

func (b *Bid) AmountDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bid amount %q: %w", b.Amount, err)
	}
	return d, nil
}

func collectionKey(c common.Address) string {
	return strings.ToLower(c.Hex())
}

func bidKey(marketplace string, collection common.Address) string {
	return "bid:" + marketplace + ":" + collectionKey(collection)
}

func priceKey(marketplace string, collection common.Address) string {
	return "price:" + marketplace + ":" + collectionKey(collection)
}

func competitorKey(marketplace string, collection common.Address) string {
	return "competitor:" + marketplace + ":" + collectionKey(collection)
}

// ChangeChannel is the pub/sub channel bid changes for a marketplace are
// published on.
func ChangeChannel(marketplace string) string {
	return "bids:" + marketplace
}

type Ledger struct {
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Get returns the current bid for the key, or nil when none is recorded.
func (l *Ledger) Get(ctx context.Context, marketplace string, collection common.Address) (*Bid, error) {
	raw, ok, err := l.store.Get(ctx, bidKey(marketplace, collection))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var b Bid
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("decode bid %s: %w", bidKey(marketplace, collection), err)
	}
	return &b, nil
}

// Put writes the bid and publishes a change message for subscribers.
func (l *Ledger) Put(ctx context.Context, b *Bid) error {
	if b == nil {
		return fmt.Errorf("nil bid")
	}
	if b.Marketplace == "" || b.Collection == "" {
		return fmt.Errorf("bid missing marketplace or collection")
	}
	b.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	key := "bid:" + b.Marketplace + ":" + strings.ToLower(b.Collection)
	if err := l.store.Set(ctx, key, string(raw)); err != nil {
		return err
	}
	_ = l.store.Publish(ctx, ChangeChannel(b.Marketplace), strings.ToLower(b.Collection))
	return nil
}

// Remove deletes the bid record for the key and publishes the change.
func (l *Ledger) Remove(ctx context.Context, marketplace string, collection common.Address) error {
	if err := l.store.Delete(ctx, bidKey(marketplace, collection)); err != nil {
		return err
	}
	_ = l.store.Publish(ctx, ChangeChannel(marketplace), collectionKey(collection))
	return nil
}

// List scans every recorded bid, used for startup rehydration.
func (l *Ledger) List(ctx context.Context) ([]*Bid, error) {
	keys, err := l.store.Keys(ctx, "bid:")
	if err != nil {
		return nil, err
	}
	out := make([]*Bid, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := l.store.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Deleted between scan and read; eventual consistency in action.
			continue
		}
		var b Bid
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("decode bid %s: %w", k, err)
		}
		out = append(out, &b)
	}
	return out, nil
}

// SetCompetitor records the currently observed competing order ID for a key.
func (l *Ledger) SetCompetitor(ctx context.Context, marketplace string, collection common.Address, orderID string) error {
	key := competitorKey(marketplace, collection)
	if orderID == "" {
		return l.store.Delete(ctx, key)
	}
	return l.store.Set(ctx, key, orderID)
}

// Competitor returns the recorded competing order ID, "" when none.
func (l *Ledger) Competitor(ctx context.Context, marketplace string, collection common.Address) (string, error) {
	v, ok, err := l.store.Get(ctx, competitorKey(marketplace, collection))
	if err != nil || !ok {
		return "", err
	}
	return v, nil
}

// SetLastPrice records the last parsed competing price for a key. The other
// marketplace's record serves as the cross-market reference price.
func (l *Ledger) SetLastPrice(ctx context.Context, marketplace string, collection common.Address, price decimal.Decimal) error {
	return l.store.Set(ctx, priceKey(marketplace, collection), price.String())
}

// ClearLastPrice removes the price record, used when a venue reports no open
// competing offer.
func (l *Ledger) ClearLastPrice(ctx context.Context, marketplace string, collection common.Address) error {
	return l.store.Delete(ctx, priceKey(marketplace, collection))
}

// LastPrice returns the recorded competing price for a key.
func (l *Ledger) LastPrice(ctx context.Context, marketplace string, collection common.Address) (decimal.Decimal, bool, error) {
	v, ok, err := l.store.Get(ctx, priceKey(marketplace, collection))
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("decode price %s: %w", priceKey(marketplace, collection), err)
	}
	return d, true, nil
}
