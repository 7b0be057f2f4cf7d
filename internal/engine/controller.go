package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidsync/internal/audit"
	"bidsync/internal/ledger"
	"bidsync/internal/market"
	"bidsync/internal/pricing"
)

// ControllerOptions tune bid placement.
type ControllerOptions struct {
	// BidTTL is how far in the future submitted bids expire.
	BidTTL time.Duration
	// Quantity is the number of items per bid.
	Quantity int
	// DryRun logs intended submissions without touching any venue.
	DryRun bool
}

func (o *ControllerOptions) withDefaults() ControllerOptions {
	out := ControllerOptions{BidTTL: 15 * time.Minute, Quantity: 1}
	if o != nil {
		if o.BidTTL > 0 {
			out.BidTTL = o.BidTTL
		}
		if o.Quantity > 0 {
			out.Quantity = o.Quantity
		}
		out.DryRun = o.DryRun
	}
	return out
}

// Controller drives the bid lifecycle per (collection, marketplace) key. It
// consumes ChangeEvents, computes the target bid, and enqueues the single
// operation that reconciles venue state with the target. All ledger and venue
// mutation happens inside queue operations.
type Controller struct {
	clients  map[string]market.Client
	ledger   *ledger.Ledger
	queue    *Queue
	protocol *Protocol
	audit    *audit.Log
	params   map[string]pricing.BidParams
	opts     ControllerOptions
}

func NewController(clients []market.Client, lg *ledger.Ledger, q *Queue, p *Protocol, al *audit.Log, params map[common.Address]pricing.BidParams, opts *ControllerOptions) *Controller {
	byName := make(map[string]market.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	byColl := make(map[string]pricing.BidParams, len(params))
	for addr, bp := range params {
		byColl[strings.ToLower(addr.Hex())] = bp
	}
	return &Controller{
		clients:  byName,
		ledger:   lg,
		queue:    q,
		protocol: p,
		audit:    al,
		params:   byColl,
		opts:     opts.withDefaults(),
	}
}

// Run consumes change events until ctx is cancelled or the channel closes.
func (c *Controller) Run(ctx context.Context, events <-chan ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleChange(ev)
		}
	}
}

// HandleChange enqueues a recalculation for the event's key.
func (c *Controller) HandleChange(ev ChangeEvent) {
	c.queue.Enqueue(&Operation{
		Type:        OpRecalc,
		Marketplace: ev.Key.Marketplace,
		Collection:  strings.ToLower(ev.Key.Collection.Hex()),
		Run: func(ctx context.Context) error {
			return c.evaluate(ctx, ev)
		},
	})
}

func (c *Controller) evaluate(ctx context.Context, ev ChangeEvent) error {
	key := ev.Key
	collHex := strings.ToLower(key.Collection.Hex())

	params, ok := c.params[collHex]
	if !ok {
		log.Printf("[info] %s not configured, skipping", key)
		return nil
	}
	client, ok := c.clients[key.Marketplace]
	if !ok {
		return fmt.Errorf("no client for marketplace %q", key.Marketplace)
	}

	current, err := c.ledger.Get(ctx, key.Marketplace, key.Collection)
	if err != nil {
		return err
	}

	// A venue-side invalidation of our own order means the ledger entry no
	// longer reflects reality; drop it and rebuild from the target.
	if ev.OwnBidInvalidated && current.Open() {
		c.audit.Record(audit.Event{
			Event: "invalidated", Marketplace: key.Marketplace, Collection: collHex,
			Amount: current.Amount, QuoteID: current.QuoteID, OrderID: current.OrderID, Ok: true,
		})
		if !c.opts.DryRun {
			if err := c.ledger.Remove(ctx, key.Marketplace, key.Collection); err != nil {
				return err
			}
		}
		current = nil
	}

	target, want := c.target(ctx, key, ev.Price, ev.HasOffer, params)

	if !want {
		return c.retire(ctx, client, key, current, "no profitable target")
	}

	if current.Open() {
		cur, err := current.AmountDecimal()
		if err == nil && cur.Equal(target) {
			log.Printf("[info] unchanged %s amount=%s", key, target)
			c.audit.Record(audit.Event{
				Event: "unchanged", Marketplace: key.Marketplace, Collection: collHex,
				Amount: target.String(), QuoteID: current.QuoteID, OrderID: current.OrderID, Ok: true,
			})
			return nil
		}
		if c.opts.DryRun {
			log.Printf("[dry] would replace %s amount=%s->%s order=%s", key, current.Amount, target, current.OrderID)
			c.audit.Record(audit.Event{
				Event: "dry_replace", Marketplace: key.Marketplace, Collection: collHex,
				Amount: target.String(), OrderID: current.OrderID, Ok: true,
			})
			return nil
		}
		// Replace: best-effort cancel of the old order, then the fresh
		// submit. Cancel failure never blocks the replacement; the new bid
		// supersedes venue-side either way.
		if client.SupportsCancel() && current.OrderID != "" {
			if err := c.protocol.Cancel(ctx, client, collHex, current.OrderID); err != nil {
				log.Printf("[warn] cancel before replace %s order=%s: %v", key, current.OrderID, err)
			}
		}
		if err := c.ledger.Remove(ctx, key.Marketplace, key.Collection); err != nil {
			return err
		}
	}

	return c.submit(ctx, client, key, target)
}

// target computes the bid amount for the key. The competing offer on the
// bidding venue and the other venue's recorded best price feed the capped
// outbid rule; with no competitor the engine bids margin under the
// cross-market reference alone; with no reference there is no profitability
// cap and no bid is placed.
func (c *Controller) target(ctx context.Context, key Key, competitor decimal.Decimal, hasCompetitor bool, params pricing.BidParams) (decimal.Decimal, bool) {
	reference, hasRef := c.reference(ctx, key)
	switch {
	case hasCompetitor && hasRef:
		return pricing.ComputeTargetBid(competitor, reference, params)
	case !hasCompetitor && hasRef:
		return pricing.ComputeSoloBid(reference, params)
	default:
		return decimal.Decimal{}, false
	}
}

// reference returns the best recorded price among the other marketplaces.
func (c *Controller) reference(ctx context.Context, key Key) (decimal.Decimal, bool) {
	names := make([]string, 0, len(c.clients))
	for name := range c.clients {
		if name != key.Marketplace {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var best decimal.Decimal
	found := false
	for _, name := range names {
		p, ok, err := c.ledger.LastPrice(ctx, name, key.Collection)
		if err != nil {
			log.Printf("[warn] reference price %s:%s: %v", name, key.Collection.Hex(), err)
			continue
		}
		if ok && (!found || p.GreaterThan(best)) {
			best = p
			found = true
		}
	}
	return best, found
}

// retire removes a standing bid when no target remains. On venues without a
// cancel endpoint the order is left to expire venue-side and only the local
// entry is dropped.
func (c *Controller) retire(ctx context.Context, client market.Client, key Key, current *ledger.Bid, reason string) error {
	if !current.Open() {
		return nil
	}
	collHex := strings.ToLower(key.Collection.Hex())

	if c.opts.DryRun {
		log.Printf("[dry] would cancel %s order=%s (%s)", key, current.OrderID, reason)
		c.audit.Record(audit.Event{
			Event: "dry_cancel", Marketplace: key.Marketplace, Collection: collHex,
			Amount: current.Amount, OrderID: current.OrderID, Reason: reason, Ok: true,
		})
		return nil
	}

	if client.SupportsCancel() && current.OrderID != "" {
		if err := c.protocol.Cancel(ctx, client, collHex, current.OrderID); err != nil && err != market.ErrCancelUnsupported {
			c.audit.Record(audit.Event{
				Event: "cancel", Marketplace: key.Marketplace, Collection: collHex,
				Amount: current.Amount, OrderID: current.OrderID, Reason: reason, Err: err.Error(),
			})
			return err
		}
	} else if !client.SupportsCancel() {
		log.Printf("[warn] %s cannot cancel, order %s retires at expiration", key, current.OrderID)
	}

	if err := c.ledger.Remove(ctx, key.Marketplace, key.Collection); err != nil {
		return err
	}
	log.Printf("[info] cancelled %s order=%s (%s)", key, current.OrderID, reason)
	c.audit.Record(audit.Event{
		Event: "cancel", Marketplace: key.Marketplace, Collection: collHex,
		Amount: current.Amount, OrderID: current.OrderID, Reason: reason, Ok: true,
	})
	return nil
}

// submit places a fresh bid for the key. The ledger holds a pending entry for
// the duration of the venue round-trip; failure leaves the key empty so the
// next signal re-evaluates from scratch.
func (c *Controller) submit(ctx context.Context, client market.Client, key Key, amount decimal.Decimal) error {
	collHex := strings.ToLower(key.Collection.Hex())

	if c.opts.DryRun {
		log.Printf("[dry] would submit %s amount=%s", key, amount)
		c.audit.Record(audit.Event{
			Event: "dry_submit", Marketplace: key.Marketplace, Collection: collHex,
			Amount: amount.String(), Ok: true,
		})
		return nil
	}

	existing, err := c.ledger.Get(ctx, key.Marketplace, key.Collection)
	if err != nil {
		return err
	}
	if existing.Open() {
		return fmt.Errorf("%w: %s", ErrInvariant, key)
	}

	quoteID := uuid.NewString()
	expiration := time.Now().UTC().Add(c.opts.BidTTL)

	pending := &ledger.Bid{
		Collection:  collHex,
		Marketplace: key.Marketplace,
		Amount:      amount.String(),
		QuoteID:     quoteID,
		Expiration:  expiration,
		Status:      ledger.StatusPending,
	}
	if err := c.ledger.Put(ctx, pending); err != nil {
		return err
	}

	res, err := c.protocol.Submit(ctx, client, market.BidDescriptor{
		Collection: key.Collection,
		Amount:     amount,
		Quantity:   c.opts.Quantity,
		Expiration: expiration,
		QuoteID:    quoteID,
	})
	if err != nil {
		if rerr := c.ledger.Remove(ctx, key.Marketplace, key.Collection); rerr != nil {
			log.Printf("[warn] remove failed pending %s: %v", key, rerr)
		}
		c.audit.Record(audit.Event{
			Event: "submit", Marketplace: key.Marketplace, Collection: collHex,
			Amount: amount.String(), QuoteID: quoteID, Err: err.Error(),
		})
		return err
	}

	pending.OrderID = res.OrderID
	pending.Status = ledger.StatusActive
	pending.Signature = fmt.Sprintf("0x%x", res.Signature)
	if err := c.ledger.Put(ctx, pending); err != nil {
		return err
	}
	log.Printf("[info] submitted %s amount=%s order=%s", key, amount, res.OrderID)
	c.audit.Record(audit.Event{
		Event: "submit", Marketplace: key.Marketplace, Collection: collHex,
		Amount: amount.String(), QuoteID: quoteID, OrderID: res.OrderID, Ok: true,
	})
	return nil
}

// Rehydrate reloads the ledger at startup, expiring pending or active bids
// whose expiration already passed while the engine was down.
func (c *Controller) Rehydrate(ctx context.Context) error {
	bids, err := c.ledger.List(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	now := time.Now().UTC()
	for _, b := range bids {
		coll := common.HexToAddress(b.Collection)
		if b.Open() && !b.Expiration.IsZero() && b.Expiration.Before(now) {
			if c.opts.DryRun {
				log.Printf("[dry] would expire stale bid %s:%s order=%s", b.Marketplace, b.Collection, b.OrderID)
				continue
			}
			log.Printf("[info] expiring stale bid %s:%s order=%s", b.Marketplace, b.Collection, b.OrderID)
			if err := c.ledger.Remove(ctx, b.Marketplace, coll); err != nil {
				return err
			}
			c.audit.Record(audit.Event{
				Event: "expired", Marketplace: b.Marketplace, Collection: b.Collection,
				Amount: b.Amount, QuoteID: b.QuoteID, OrderID: b.OrderID, Ok: true,
			})
			continue
		}
		log.Printf("[info] resuming bid %s:%s status=%s amount=%s", b.Marketplace, b.Collection, b.Status, b.Amount)
	}
	return nil
}
