package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bidsync/internal/market"
	"bidsync/internal/signer"
)

func newTestProtocol(t *testing.T) *Protocol {
	t.Helper()
	sg, err := signer.NewEphemeral()
	if err != nil {
		t.Fatalf("ephemeral signer: %v", err)
	}
	return NewProtocol(sg)
}

func testBid() market.BidDescriptor {
	return market.BidDescriptor{
		Collection: testCollection,
		Amount:     d("0.2"),
		Quantity:   1,
		Expiration: time.Now().Add(time.Hour),
		QuoteID:    "q-1",
	}
}

func TestProtocolSubmitSequence(t *testing.T) {
	p := newTestProtocol(t)
	client := &fakeClient{name: "opensea", cancelable: true}

	res, err := p.Submit(context.Background(), client, testBid())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.OrderID != "opensea-order-1" {
		t.Fatalf("got order %q, want opensea-order-1", res.OrderID)
	}
	if len(res.Signature) != 65 {
		t.Fatalf("got %d signature bytes, want 65", len(res.Signature))
	}
	if v := res.Signature[64]; v != 27 && v != 28 {
		t.Fatalf("got recovery byte %d, want 27 or 28", v)
	}
}

func TestProtocolStepErrors(t *testing.T) {
	p := newTestProtocol(t)

	cases := []struct {
		name   string
		client *fakeClient
		step   string
	}{
		{"format", &fakeClient{name: "opensea", formatErr: fmt.Errorf("boom")}, "format"},
		{"submit", &fakeClient{name: "opensea", submitErr: fmt.Errorf("boom")}, "submit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Submit(context.Background(), tc.client, testBid())
			var serr *SubmissionError
			if !errors.As(err, &serr) {
				t.Fatalf("got %v, want SubmissionError", err)
			}
			if serr.Step != tc.step {
				t.Fatalf("got step %q, want %q", serr.Step, tc.step)
			}
		})
	}
}

func TestProtocolRejectsMalformedPayload(t *testing.T) {
	p := newTestProtocol(t)
	client := &malformedClient{fakeClient{name: "opensea"}}

	_, err := p.Submit(context.Background(), client, testBid())
	var serr *SubmissionError
	if !errors.As(err, &serr) || serr.Step != "decode" {
		t.Fatalf("got %v, want decode SubmissionError", err)
	}
}

type malformedClient struct{ fakeClient }

func (m *malformedClient) FormatBid(ctx context.Context, bid market.BidDescriptor) (*market.FormatResult, error) {
	return &market.FormatResult{Payload: []byte(`{"no":"primaryType"}`)}, nil
}

func TestProtocolCancelUnsupportedPassesThrough(t *testing.T) {
	p := newTestProtocol(t)
	client := &fakeClient{name: "looksrare"}

	err := p.Cancel(context.Background(), client, "0xaa", "o-1")
	if err != market.ErrCancelUnsupported {
		t.Fatalf("got %v, want ErrCancelUnsupported", err)
	}
}
