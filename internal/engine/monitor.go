package engine

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bidsync/internal/feed"
	"bidsync/internal/ledger"
	"bidsync/internal/market"
)

// Key identifies one (collection, marketplace) pair.
type Key struct {
	Marketplace string
	Collection  common.Address
}

func (k Key) String() string {
	return k.Marketplace + ":" + strings.ToLower(k.Collection.Hex())
}

// ChangeEvent is emitted when a key's competing price signal changes, or when
// the engine's own bid at the key was invalidated venue-side.
type ChangeEvent struct {
	Key      Key
	Price    decimal.Decimal
	HasOffer bool
	OrderID  string

	// OwnBidInvalidated forces re-evaluation regardless of signal changes.
	OwnBidInvalidated bool
}

// Source is one polled marketplace.
type Source struct {
	Client       market.Client
	PollInterval time.Duration
	FetchTimeout time.Duration

	// BaselineOnly records the first observation of each key without acting
	// on it, so a venue's historical prices seed calculations instead of
	// triggering retroactive bids.
	BaselineOnly bool
}

// Monitor polls the marketplaces for best competing offers, de-duplicates
// signals by exact raw-string comparison, and emits ChangeEvents. It also
// dispatches push invalidation events against the recorded competing and own
// order IDs.
type Monitor struct {
	sources     []Source
	collections []common.Address
	ledger      *ledger.Ledger
	events      chan ChangeEvent

	mu      sync.Mutex
	lastRaw map[string]string
	seen    map[string]bool
}

func NewMonitor(sources []Source, collections []common.Address, lg *ledger.Ledger) *Monitor {
	return &Monitor{
		sources:     sources,
		collections: collections,
		ledger:      lg,
		events:      make(chan ChangeEvent, 256),
		lastRaw:     make(map[string]string),
		seen:        make(map[string]bool),
	}
}

func (m *Monitor) Events() <-chan ChangeEvent { return m.events }

// Run polls every source on its own interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range m.sources {
		src := &m.sources[i]
		g.Go(func() error {
			return m.pollLoop(ctx, src)
		})
	}
	return g.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context, src *Source) error {
	interval := src.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		for _, coll := range m.collections {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.pollOnce(ctx, src, coll)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// pollOnce fetches the current best offer for one key and emits a ChangeEvent
// when the raw signal differs from the last observation. A failed fetch is
// logged and skipped; the next tick retries naturally.
func (m *Monitor) pollOnce(ctx context.Context, src *Source, coll common.Address) {
	key := Key{Marketplace: src.Client.Name(), Collection: coll}

	fetchCtx := ctx
	if src.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, src.FetchTimeout)
		defer cancel()
	}

	offer, err := src.Client.BestOffer(fetchCtx, coll)
	if err != nil {
		ferr := &TransientFetchError{Marketplace: key.Marketplace, Collection: key.Collection.Hex(), Err: err}
		log.Printf("[warn] %v", ferr)
		return
	}

	raw := ""
	orderID := ""
	var price decimal.Decimal
	hasOffer := offer != nil
	if hasOffer {
		raw = offer.Raw
		orderID = offer.OrderID
		price = offer.Price
		if price.Sign() <= 0 {
			verr := &ValidationError{Marketplace: key.Marketplace, Collection: key.Collection.Hex(), Reason: "non-positive price"}
			log.Printf("[warn] %v", verr)
			return
		}
	}

	// Exact string comparison, not semantic equality: any byte-level change
	// in the venue payload counts as a change. Over-reporting is preferred to
	// missing a real move behind a reformatted payload.
	m.mu.Lock()
	last, seen := m.lastRaw[key.String()]
	first := !m.seen[key.String()]
	if seen && last == raw {
		m.mu.Unlock()
		return
	}
	m.lastRaw[key.String()] = raw
	m.seen[key.String()] = true
	m.mu.Unlock()

	m.record(ctx, key, hasOffer, price, orderID)

	if first && src.BaselineOnly {
		log.Printf("[baseline] %s recorded without action (offer=%v)", key, hasOffer)
		return
	}

	m.emit(ctx, ChangeEvent{Key: key, Price: price, HasOffer: hasOffer, OrderID: orderID})
}

// record persists the competing order ID and last price so invalidation
// matching and cross-market reference lookups survive restarts.
func (m *Monitor) record(ctx context.Context, key Key, hasOffer bool, price decimal.Decimal, orderID string) {
	if err := m.ledger.SetCompetitor(ctx, key.Marketplace, key.Collection, orderID); err != nil {
		log.Printf("[warn] record competitor %s: %v", key, err)
	}
	if hasOffer {
		if err := m.ledger.SetLastPrice(ctx, key.Marketplace, key.Collection, price); err != nil {
			log.Printf("[warn] record price %s: %v", key, err)
		}
	} else if err := m.ledger.ClearLastPrice(ctx, key.Marketplace, key.Collection); err != nil {
		log.Printf("[warn] clear price %s: %v", key, err)
	}
}

// HandleInvalidation dispatches one push event from the named venue's feed;
// the wire message itself carries no venue identifier. A match against the
// recorded competing order triggers a fresh fetch; a match against our own
// recorded bid forces re-evaluation; anything else is a stale invalidation
// for an already-superseded order and is ignored.
func (m *Monitor) HandleInvalidation(ctx context.Context, marketplace string, ev feed.Event) {
	if ev.Event != feed.EventInvalidate || ev.OrderID == "" || marketplace == "" {
		return
	}
	coll := common.HexToAddress(ev.Collection)
	key := Key{Marketplace: marketplace, Collection: coll}

	competitor, err := m.ledger.Competitor(ctx, key.Marketplace, key.Collection)
	if err != nil {
		log.Printf("[warn] invalidation lookup %s: %v", key, err)
		return
	}
	if competitor == ev.OrderID {
		src := m.sourceFor(marketplace)
		if src == nil {
			return
		}
		m.pollOnce(ctx, src, coll)
		return
	}

	own, err := m.ledger.Get(ctx, key.Marketplace, key.Collection)
	if err != nil {
		log.Printf("[warn] invalidation lookup %s: %v", key, err)
		return
	}
	if own.Open() && own.OrderID == ev.OrderID {
		log.Printf("[info] own bid invalidated %s order=%s", key, ev.OrderID)
		price, hasPrice, err := m.ledger.LastPrice(ctx, key.Marketplace, key.Collection)
		if err != nil {
			log.Printf("[warn] invalidation price %s: %v", key, err)
		}
		m.emit(ctx, ChangeEvent{Key: key, Price: price, HasOffer: hasPrice, OwnBidInvalidated: true})
		return
	}

	log.Printf("[info] stale invalidation %s order=%s ignored", key, ev.OrderID)
}

func (m *Monitor) sourceFor(marketplace string) *Source {
	for i := range m.sources {
		if m.sources[i].Client.Name() == marketplace {
			return &m.sources[i]
		}
	}
	return nil
}

func (m *Monitor) emit(ctx context.Context, ev ChangeEvent) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
