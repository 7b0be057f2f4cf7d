package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BidParams are the per-(collection, marketplace) bidding parameters. All
// amounts are quoted in the marketplace's payment token (WETH).
type BidParams struct {
	MinBid          decimal.Decimal
	MaxBid          decimal.Decimal
	Margin          decimal.Decimal
	TickSize        decimal.Decimal
	OutbidIncrement decimal.Decimal
	FeeRateBps      int
}

func (p BidParams) Validate() error {
	if p.Margin.Sign() < 0 {
		return fmt.Errorf("margin must be >= 0")
	}
	if p.TickSize.Sign() <= 0 {
		return fmt.Errorf("tick size must be > 0")
	}
	if p.OutbidIncrement.Sign() < 0 {
		return fmt.Errorf("outbid increment must be >= 0")
	}
	if p.MinBid.Sign() < 0 || p.MaxBid.Sign() < 0 {
		return fmt.Errorf("bid bounds must be >= 0")
	}
	if p.MaxBid.Sign() > 0 && p.MinBid.GreaterThan(p.MaxBid) {
		return fmt.Errorf("min bid %s exceeds max bid %s", p.MinBid, p.MaxBid)
	}
	if p.FeeRateBps < 0 || p.FeeRateBps > 10_000 {
		return fmt.Errorf("fee rate bps out of range: %d", p.FeeRateBps)
	}
	return nil
}

// ComputeTargetBid returns the target bid amount under the cross-market
// capped-outbid policy, or ok=false when no profitable bid exists.
//
// cap = reference - margin. A competitor at or above the cap pins the target
// to the cap; otherwise the target is the minimal outbid of the competitor.
// The result is floored to the tick grid and clamped into [MinBid, MaxBid].
func ComputeTargetBid(competitor, reference decimal.Decimal, params BidParams) (decimal.Decimal, bool) {
	if competitor.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	cap := reference.Sub(params.Margin)
	if cap.Sign() <= 0 {
		return decimal.Decimal{}, false
	}

	var target decimal.Decimal
	if competitor.GreaterThanOrEqual(cap) {
		target = cap
	} else {
		target = competitor.Add(params.OutbidIncrement)
	}
	return clampToBounds(FloorToTick(target, params.TickSize), params)
}

// ComputeSoloBid is the single-market variant: with no independent reference
// market the one observed price bounds profitability directly, and there is no
// outbid step.
func ComputeSoloBid(price decimal.Decimal, params BidParams) (decimal.Decimal, bool) {
	if price.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	target := price.Sub(params.Margin)
	if target.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return clampToBounds(FloorToTick(target, params.TickSize), params)
}

func clampToBounds(target decimal.Decimal, params BidParams) (decimal.Decimal, bool) {
	if params.MaxBid.Sign() > 0 && target.GreaterThan(params.MaxBid) {
		target = FloorToTick(params.MaxBid, params.TickSize)
	}
	if target.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	if params.MinBid.Sign() > 0 && target.LessThan(params.MinBid) {
		return decimal.Decimal{}, false
	}
	return target, true
}
