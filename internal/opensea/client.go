// Package opensea implements the marketplace client for the OpenSea-style
// venue: collection offers quoted in WETH, EIP-712 signable payloads from the
// format endpoint, and a working cancel endpoint.
package opensea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"bidsync/internal/market"
	"bidsync/internal/pricing"
)

const (
	DefaultHost = "https://api.opensea.io"

	// All offers on this venue are collateralized in WETH.
	paymentDecimals = 18
)

const Name = "opensea"

type Client struct {
	rest *market.REST
}

func NewClient(host, apiKey string) (*Client, error) {
	rest, err := market.NewREST(Name, host, DefaultHost)
	if err != nil {
		return nil, err
	}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		rest.Headers.Set("X-API-KEY", apiKey)
	}
	return &Client{rest: rest}, nil
}

func (c *Client) Name() string         { return Name }
func (c *Client) SupportsCancel() bool { return true }

type bestOfferResp struct {
	Price   *market.PricePayload `json:"price"`
	OrderID string               `json:"orderId"`
}

// BestOffer fetches the best competing collection offer. A 404 or a response
// without a price both mean "no open competing offer" and return nil.
func (c *Client) BestOffer(ctx context.Context, collection common.Address) (*market.Offer, error) {
	path := "/v2/offers/collection/" + strings.ToLower(collection.Hex()) + "/best"

	var resp bestOfferResp
	raw, err := c.rest.GetJSON(ctx, path, nil, &resp)
	if err != nil {
		var se *market.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if resp.Price == nil || resp.Price.RawAmount == "" {
		return nil, nil
	}

	price, err := pricing.FromRawAmount(resp.Price.RawAmount, resp.Price.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%s best offer for %s: %w", Name, collection.Hex(), err)
	}
	return &market.Offer{
		Marketplace: Name,
		Collection:  collection,
		Price:       price,
		Currency:    resp.Price.Currency,
		OrderID:     resp.OrderID,
		Raw:         string(raw),
		ObservedAt:  time.Now().UTC(),
	}, nil
}

type formatReq struct {
	Collection string `json:"collection"`
	RawAmount  string `json:"rawAmount"`
	Quantity   int    `json:"quantity"`
	Expiration int64  `json:"expiration"`
	QuoteID    string `json:"quoteId"`
}

type formatResp struct {
	SignablePayload json.RawMessage `json:"signablePayload"`
	SideData        json.RawMessage `json:"sideData"`
}

func (c *Client) FormatBid(ctx context.Context, bid market.BidDescriptor) (*market.FormatResult, error) {
	if bid.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s format: amount must be > 0", Name)
	}
	req := formatReq{
		Collection: strings.ToLower(bid.Collection.Hex()),
		RawAmount:  pricing.ToRawAmount(bid.Amount, paymentDecimals),
		Quantity:   bid.Quantity,
		Expiration: bid.Expiration.Unix(),
		QuoteID:    bid.QuoteID,
	}
	var resp formatResp
	if _, err := c.rest.PostJSON(ctx, http.MethodPost, "/v2/offers/format", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.SignablePayload) == 0 {
		return nil, fmt.Errorf("%s format: signable payload missing in response", Name)
	}
	return &market.FormatResult{Payload: resp.SignablePayload, SideData: resp.SideData}, nil
}

type submitReq struct {
	Payload   json.RawMessage `json:"payload"`
	SideData  json.RawMessage `json:"sideData,omitempty"`
	Signature string          `json:"signature"`
	QuoteID   string          `json:"quoteId"`
}

type submitResp struct {
	OrderID string `json:"orderId"`
}

func (c *Client) SubmitBid(ctx context.Context, bid market.BidDescriptor, formatted *market.FormatResult, signature []byte) (string, error) {
	if formatted == nil || len(formatted.Payload) == 0 {
		return "", fmt.Errorf("%s submit: formatted payload required", Name)
	}
	if len(signature) == 0 {
		return "", fmt.Errorf("%s submit: signature required", Name)
	}
	req := submitReq{
		Payload:   formatted.Payload,
		SideData:  formatted.SideData,
		Signature: fmt.Sprintf("0x%x", signature),
		QuoteID:   bid.QuoteID,
	}
	var resp submitResp
	if _, err := c.rest.PostJSON(ctx, http.MethodPost, "/v2/offers", req, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%s submit: order id missing in response", Name)
	}
	return resp.OrderID, nil
}

func (c *Client) CancelBid(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%s cancel: order id required", Name)
	}
	_, err := c.rest.PostJSON(ctx, http.MethodDelete, "/v2/offers/"+orderID, nil, nil)
	return err
}
