package looksrare

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"bidsync/internal/market"
)

var collection = common.HexToAddress("0x1A92f7381B9F03921564a437210bB9396471050C")

func TestBestOffer(t *testing.T) {
	body := `{"data":{"price":{"currency":"WETH","rawAmount":"150000000000000000","decimals":18},"id":"lr-3"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/orders/best-offer" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("collection"); got != "0x1a92f7381b9f03921564a437210bb9396471050c" {
			t.Fatalf("collection param %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer lr-key" {
			t.Fatalf("authorization %q", got)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "lr-key")
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
	if !offer.Price.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("price=%s", offer.Price)
	}
	if offer.OrderID != "lr-3" {
		t.Fatalf("orderID=%s", offer.OrderID)
	}
	if offer.Raw != body {
		t.Fatalf("raw not preserved: %q", offer.Raw)
	}
}

func TestBestOfferEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
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
}

func TestCancelBidUnsupported(t *testing.T) {
	c, _ := NewClient("https://example.test", "")
	if c.SupportsCancel() {
		t.Fatalf("looksrare client must not support cancel")
	}
	if err := c.CancelBid(context.Background(), "lr-3"); !errors.Is(err, market.ErrCancelUnsupported) {
		t.Fatalf("err=%v want ErrCancelUnsupported", err)
	}
}
