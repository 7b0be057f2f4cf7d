package opensea

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"bidsync/internal/market"
)

var collection = common.HexToAddress("0x1A92f7381B9F03921564a437210bB9396471050C")

func TestBestOffer(t *testing.T) {
	body := `{"price":{"currency":"WETH","rawAmount":"200000000000000000","decimals":18},"orderId":"os-1"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/offers/collection/0x1a92f7381b9f03921564a437210bb9396471050c/best" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Fatalf("missing api key header")
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	offer, err := c.BestOffer(context.Background(), collection)
	if err != nil {
		t.Fatalf("best offer: %v", err)
	}
	if offer == nil {
		t.Fatalf("expected offer")
	}
	if !offer.Price.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("price=%s", offer.Price)
	}
	if offer.OrderID != "os-1" {
		t.Fatalf("orderID=%s", offer.OrderID)
	}
	if offer.Raw != body {
		t.Fatalf("raw not preserved byte-for-byte: %q", offer.Raw)
	}
}

func TestBestOfferEmpty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "404 means no offer", status: http.StatusNotFound, body: `{"error":"not found"}`},
		{name: "missing price means no offer", status: http.StatusOK, body: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewClient(srv.URL, "")
			offer, err := c.BestOffer(context.Background(), collection)
			if err != nil {
				t.Fatalf("best offer: %v", err)
			}
			if offer != nil {
				t.Fatalf("expected no offer, got %+v", offer)
			}
		})
	}
}

func TestBestOfferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "")
	if _, err := c.BestOffer(context.Background(), collection); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestFormatAndSubmitBid(t *testing.T) {
	payload := json.RawMessage(`{"primaryType":"Offer","types":{},"message":{}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/offers/format":
			var req formatReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode format req: %v", err)
			}
			if req.RawAmount != "190000000000000000" {
				t.Fatalf("rawAmount=%s", req.RawAmount)
			}
			json.NewEncoder(w).Encode(formatResp{SignablePayload: payload, SideData: json.RawMessage(`{"k":"v"}`)})
		case "/v2/offers":
			var req submitReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode submit req: %v", err)
			}
			if req.Signature == "" {
				t.Fatalf("signature missing")
			}
			json.NewEncoder(w).Encode(submitResp{OrderID: "os-9"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "")
	bid := market.BidDescriptor{
		Collection: collection,
		Amount:     decimal.RequireFromString("0.19"),
		Quantity:   1,
		Expiration: time.Now().Add(time.Hour),
		QuoteID:    "q-1",
	}

	formatted, err := c.FormatBid(context.Background(), bid)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	orderID, err := c.SubmitBid(context.Background(), bid, formatted, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if orderID != "os-9" {
		t.Fatalf("orderID=%s", orderID)
	}
}

func TestFormatBidFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"amount below venue minimum"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "")
	bid := market.BidDescriptor{Collection: collection, Amount: decimal.RequireFromString("0.01"), Quantity: 1}
	if _, err := c.FormatBid(context.Background(), bid); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestSupportsCancel(t *testing.T) {
	c, _ := NewClient("https://example.test", "")
	if !c.SupportsCancel() {
		t.Fatalf("opensea client must support cancel")
	}
}
