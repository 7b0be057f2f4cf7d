package engine

import (
	"context"
	"fmt"

	"bidsync/internal/market"
	"bidsync/internal/signer"
)

// Protocol runs the submission sequence against a venue: format the bid,
// decode and normalize the returned typed data, sign it, and post the signed
// order. Each step failure is wrapped as a SubmissionError naming the step.
type Protocol struct {
	signer signer.Signer
}

func NewProtocol(s signer.Signer) *Protocol {
	return &Protocol{signer: s}
}

// SubmitResult carries what the ledger needs to record an active bid.
type SubmitResult struct {
	OrderID   string
	Signature []byte
}

func (p *Protocol) Submit(ctx context.Context, client market.Client, bid market.BidDescriptor) (*SubmitResult, error) {
	venue := client.Name()
	coll := bid.Collection.Hex()

	formatted, err := client.FormatBid(ctx, bid)
	if err != nil {
		return nil, &SubmissionError{Marketplace: venue, Collection: coll, Step: "format", Err: err}
	}
	if formatted == nil || len(formatted.Payload) == 0 {
		return nil, &SubmissionError{Marketplace: venue, Collection: coll, Step: "format", Err: fmt.Errorf("empty signable payload")}
	}

	td, err := signer.DecodeTypedData(formatted.Payload)
	if err != nil {
		return nil, &SubmissionError{Marketplace: venue, Collection: coll, Step: "decode", Err: err}
	}
	if err := signer.NormalizePayload(&td); err != nil {
		return nil, &SubmissionError{Marketplace: venue, Collection: coll, Step: "normalize", Err: err}
	}

	sig, err := p.signer.Sign(td)
	if err != nil {
		return nil, &SubmissionError{Marketplace: venue, Collection: coll, Step: "sign", Err: err}
	}

	orderID, err := client.SubmitBid(ctx, bid, formatted, sig)
	if err != nil {
		return nil, &SubmissionError{Marketplace: venue, Collection: coll, Step: "submit", Err: err}
	}
	return &SubmitResult{OrderID: orderID, Signature: sig}, nil
}

// Cancel retires a standing bid venue-side. ErrCancelUnsupported passes
// through unwrapped so callers can branch on the venue capability.
func (p *Protocol) Cancel(ctx context.Context, client market.Client, collection, orderID string) error {
	if err := client.CancelBid(ctx, orderID); err != nil {
		if err == market.ErrCancelUnsupported {
			return err
		}
		return &SubmissionError{Marketplace: client.Name(), Collection: collection, Step: "cancel", Err: err}
	}
	return nil
}
