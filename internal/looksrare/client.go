// Package looksrare implements the marketplace client for the LooksRare-style
// venue. The API mirrors the OpenSea client's concerns with a different
// dialect, and there is no cancel endpoint: submitted offers retire only
// through their own expiration.
package looksrare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"bidsync/internal/market"
	"bidsync/internal/pricing"
)

const (
	DefaultHost     = "https://api.looksrare.org"
	paymentDecimals = 18
)

const Name = "looksrare"

type Client struct {
	rest *market.REST
}

func NewClient(host, apiKey string) (*Client, error) {
	rest, err := market.NewREST(Name, host, DefaultHost)
	if err != nil {
		return nil, err
	}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		rest.Headers.Set("Authorization", "Bearer "+apiKey)
	}
	return &Client{rest: rest}, nil
}

func (c *Client) Name() string { return Name }

// SupportsCancel is false: this venue exposes no cancel endpoint, so stale
// bids are left to expire on their own.
func (c *Client) SupportsCancel() bool { return false }

type bestOfferResp struct {
	Data struct {
		Price   *market.PricePayload `json:"price"`
		OrderID string               `json:"id"`
	} `json:"data"`
}

func (c *Client) BestOffer(ctx context.Context, collection common.Address) (*market.Offer, error) {
	params := url.Values{"collection": []string{strings.ToLower(collection.Hex())}}

	var resp bestOfferResp
	raw, err := c.rest.GetJSON(ctx, "/api/v1/orders/best-offer", params, &resp)
	if err != nil {
		var se *market.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if resp.Data.Price == nil || resp.Data.Price.RawAmount == "" {
		return nil, nil
	}

	price, err := pricing.FromRawAmount(resp.Data.Price.RawAmount, resp.Data.Price.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%s best offer for %s: %w", Name, collection.Hex(), err)
	}
	return &market.Offer{
		Marketplace: Name,
		Collection:  collection,
		Price:       price,
		Currency:    resp.Data.Price.Currency,
		OrderID:     resp.Data.OrderID,
		Raw:         string(raw),
		ObservedAt:  time.Now().UTC(),
	}, nil
}

type formatReq struct {
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
	Quantity   int    `json:"quantity"`
	EndTime    int64  `json:"endTime"`
	QuoteID    string `json:"quoteId"`
}

type formatResp struct {
	Data struct {
		TypedData json.RawMessage `json:"typedData"`
		OrderMeta json.RawMessage `json:"orderMeta"`
	} `json:"data"`
}

func (c *Client) FormatBid(ctx context.Context, bid market.BidDescriptor) (*market.FormatResult, error) {
	if bid.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s format: amount must be > 0", Name)
	}
	req := formatReq{
		Collection: strings.ToLower(bid.Collection.Hex()),
		Amount:     pricing.ToRawAmount(bid.Amount, paymentDecimals),
		Quantity:   bid.Quantity,
		EndTime:    bid.Expiration.Unix(),
		QuoteID:    bid.QuoteID,
	}
	var resp formatResp
	if _, err := c.rest.PostJSON(ctx, http.MethodPost, "/api/v1/orders/format", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.TypedData) == 0 {
		return nil, fmt.Errorf("%s format: typed data missing in response", Name)
	}
	return &market.FormatResult{Payload: resp.Data.TypedData, SideData: resp.Data.OrderMeta}, nil
}

type submitReq struct {
	TypedData json.RawMessage `json:"typedData"`
	OrderMeta json.RawMessage `json:"orderMeta,omitempty"`
	Signature string          `json:"signature"`
}

type submitResp struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) SubmitBid(ctx context.Context, bid market.BidDescriptor, formatted *market.FormatResult, signature []byte) (string, error) {
	if formatted == nil || len(formatted.Payload) == 0 {
		return "", fmt.Errorf("%s submit: formatted payload required", Name)
	}
	if len(signature) == 0 {
		return "", fmt.Errorf("%s submit: signature required", Name)
	}
	req := submitReq{
		TypedData: formatted.Payload,
		OrderMeta: formatted.SideData,
		Signature: fmt.Sprintf("0x%x", signature),
	}
	var resp submitResp
	if _, err := c.rest.PostJSON(ctx, http.MethodPost, "/api/v1/orders", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("%s submit: order id missing in response", Name)
	}
	return resp.Data.ID, nil
}

func (c *Client) CancelBid(ctx context.Context, orderID string) error {
	return market.ErrCancelUnsupported
}
