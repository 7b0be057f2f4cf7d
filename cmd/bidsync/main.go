package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bidsync/internal/audit"
	"bidsync/internal/config"
	"bidsync/internal/dotenv"
	"bidsync/internal/engine"
	"bidsync/internal/ethutil"
	"bidsync/internal/feed"
	"bidsync/internal/ledger"
	"bidsync/internal/looksrare"
	"bidsync/internal/market"
	"bidsync/internal/opensea"
	"bidsync/internal/pricing"
	"bidsync/internal/signer"
	"bidsync/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var configPath string
	flag.StringVar(&configPath, "config", "bidsync.yaml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	dryRun := cfg.Engine.DryRun
	var sg signer.Signer
	if strings.TrimSpace(cfg.Signer.PrivateKey) == "" {
		if !dryRun {
			log.Printf("[info] no private key provided; using ephemeral key for dry-run")
			dryRun = true
		}
		sg, err = signer.NewEphemeral()
	} else {
		sg, err = signer.NewLocal(cfg.Signer.PrivateKey)
	}
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-ctx.Done():
		case <-sigCh:
			log.Printf("Shutting down…")
			cancel()
		}
	}()

	var st store.Store
	if strings.TrimSpace(cfg.Store.RedisURL) != "" {
		st, err = store.NewRedis(ctx, cfg.Store.RedisURL)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		log.Printf("[cfg] store: redis")
	} else {
		st = store.NewMemory()
		log.Printf("[cfg] store: in-memory (state does not survive restarts)")
	}
	defer st.Close()

	lg := ledger.New(st)

	auditLog := audit.New(cfg.Engine.AuditPath)
	if auditLog != nil {
		log.Printf("Audit log: %s (JSONL)", cfg.Engine.AuditPath)
		defer func() {
			if err := auditLog.Close(); err != nil {
				log.Printf("[warn] audit close: %v", err)
			}
		}()
	}

	osClient, err := opensea.NewClient(cfg.Marketplaces.OpenSea.Host, cfg.Marketplaces.OpenSea.APIKey)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	lrClient, err := looksrare.NewClient(cfg.Marketplaces.LooksRare.Host, cfg.Marketplaces.LooksRare.APIKey)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	clients := []market.Client{osClient, lrClient}

	params, err := cfg.Params()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	collections := cfg.Addresses()

	log.Printf("NFT bid sync engine")
	log.Printf("Signer: %s", sg.Address().Hex())
	log.Printf("Collections: %d", len(collections))
	log.Printf("Poll: %s", cfg.PollInterval())
	log.Printf("Dry-run: %v", dryRun)

	checkFunds(ctx, cfg, sg.Address())

	queue := engine.NewQueue(cfg.OpTimeout())
	mon := engine.NewMonitor(sources(cfg, clients), collections, lg)
	ctrl := engine.NewController(clients, lg, queue, engine.NewProtocol(sg), auditLog, params, &engine.ControllerOptions{
		BidTTL:   cfg.BidTTL(),
		Quantity: cfg.Engine.Quantity,
		DryRun:   dryRun,
	})

	if err := ctrl.Rehydrate(ctx); err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(ctx) })
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return ctrl.Run(ctx, mon.Events()) })

	topics := feedTopics(collections)
	startFeed(ctx, g, mon, "opensea", cfg.Marketplaces.OpenSea.FeedURL, topics)
	startFeed(ctx, g, mon, "looksrare", cfg.Marketplaces.LooksRare.FeedURL, topics)

	log.Printf("Listening…")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[fatal] %v", err)
	}
}

func sources(cfg *config.Config, clients []market.Client) []engine.Source {
	baseline := map[string]bool{
		"opensea":   cfg.Marketplaces.OpenSea.BaselineOnly,
		"looksrare": cfg.Marketplaces.LooksRare.BaselineOnly,
	}
	out := make([]engine.Source, 0, len(clients))
	for _, c := range clients {
		out = append(out, engine.Source{
			Client:       c,
			PollInterval: cfg.PollInterval(),
			FetchTimeout: cfg.FetchTimeout(),
			BaselineOnly: baseline[c.Name()],
		})
	}
	return out
}

func feedTopics(collections []common.Address) []string {
	out := make([]string, 0, len(collections))
	for _, c := range collections {
		out = append(out, strings.ToLower(c.Hex()))
	}
	return out
}

// startFeed wires one venue's push invalidation stream into the monitor.
// Feed errors are logged and the feed reconnects on its own; polling keeps
// working either way.
func startFeed(ctx context.Context, g *errgroup.Group, mon *engine.Monitor, name, url string, topics []string) {
	if strings.TrimSpace(url) == "" {
		return
	}
	log.Printf("Feed (%s): %s", name, url)
	events, errs := feed.Start(ctx, url, topics, feed.Options{})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				mon.HandleInvalidation(ctx, name, ev)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					log.Printf("[warn] feed %s: %v", name, err)
				}
			}
		}
	})
}

// checkFunds warns when the signer wallet holds less WETH than the configured
// floor. Advisory only: a short wallet fails at submission, not here.
func checkFunds(ctx context.Context, cfg *config.Config, owner common.Address) {
	rpcURL := strings.TrimSpace(cfg.Chain.RPCURL)
	if rpcURL == "" {
		return
	}
	var token common.Address
	if w := strings.TrimSpace(cfg.Chain.WETH); w != "" {
		if !common.IsHexAddress(w) {
			log.Printf("[warn] invalid chain.weth address %q, skipping funds check", w)
			return
		}
		token = common.HexToAddress(w)
	}

	balCtx, balCancel := context.WithTimeout(ctx, 12*time.Second)
	defer balCancel()
	bal, err := ethutil.WETHBalance(balCtx, rpcURL, token, owner)
	if err != nil {
		log.Printf("[warn] funds check: %v", err)
		return
	}
	log.Printf("WETH balance: %s", bal)

	// The floor is chain.min_balance when set, otherwise the sum of every
	// configured max bid: the worst case of all bids filling at once.
	var floor decimal.Decimal
	if raw := strings.TrimSpace(cfg.Chain.MinBalance); raw != "" {
		f, err := pricing.ParsePrice(raw)
		if err != nil {
			log.Printf("[warn] chain.min_balance: %v", err)
			return
		}
		floor = f
	} else {
		params, err := cfg.Params()
		if err != nil {
			return
		}
		for _, p := range params {
			floor = floor.Add(p.MaxBid)
		}
	}
	if floor.Sign() > 0 && bal.LessThan(floor) {
		log.Printf("[warn] WETH balance %s below floor %s; submissions may fail", bal, floor)
	}
}
