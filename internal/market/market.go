// Package market defines the shapes shared by the per-venue marketplace
// clients. Each venue speaks its own REST dialect; the clients normalize best
// offers, bid formatting, submission, and cancellation into these types.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrCancelUnsupported is returned by venues without a cancel endpoint. The
// caller must treat this as a degraded mode, not a failure: the venue's own
// order expiration retires the old bid.
var ErrCancelUnsupported = errors.New("marketplace does not support cancel")

// Offer is the best competing offer on a collection. Raw preserves the exact
// response bytes as received; change detection compares Raw byte-for-byte.
type Offer struct {
	Marketplace string
	Collection  common.Address
	Price       decimal.Decimal
	Currency    string
	OrderID     string
	Raw         string
	ObservedAt  time.Time
}

// PricePayload is the wire shape both venues use for quoted prices.
type PricePayload struct {
	Currency  string `json:"currency"`
	RawAmount string `json:"rawAmount"`
	Decimals  int32  `json:"decimals"`
}

// BidDescriptor describes a bid to be formatted and submitted.
type BidDescriptor struct {
	Collection common.Address
	Amount     decimal.Decimal
	Quantity   int
	Expiration time.Time
	QuoteID    string
}

// FormatResult is a venue's response to a format request: the signable
// payload (EIP-712 typed data, kept raw so numeric precision survives until
// the signing boundary) plus opaque venue-specific side data that must be
// echoed back on submission.
type FormatResult struct {
	Payload  json.RawMessage
	SideData json.RawMessage
}

type Client interface {
	Name() string

	// BestOffer returns the best competing offer for the collection, or nil
	// when there is no open offer (a valid outcome, not an error).
	BestOffer(ctx context.Context, collection common.Address) (*Offer, error)

	FormatBid(ctx context.Context, bid BidDescriptor) (*FormatResult, error)

	// SubmitBid posts the signed payload and side data; returns the
	// venue-assigned order ID.
	SubmitBid(ctx context.Context, bid BidDescriptor, formatted *FormatResult, signature []byte) (string, error)

	// CancelBid cancels a previously submitted bid by venue order ID.
	// Returns ErrCancelUnsupported when the venue has no cancel endpoint.
	CancelBid(ctx context.Context, orderID string) error

	SupportsCancel() bool
}
