package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bidsync/internal/dotenv"
	"bidsync/internal/ethutil"
	"bidsync/internal/looksrare"
	"bidsync/internal/market"
	"bidsync/internal/opensea"
)

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var collectionsFlag string
	var timeoutFlag time.Duration
	flag.StringVar(&collectionsFlag, "collections", "", "Comma-separated collection addresses to query")
	flag.DurationVar(&timeoutFlag, "timeout", 10*time.Second, "Per-venue request timeout")
	flag.Parse()

	raw := strings.TrimSpace(collectionsFlag)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("COLLECTIONS"))
	}
	collections, err := ethutil.ParseAddresses(raw)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if len(collections) == 0 {
		log.Fatalf("[fatal] at least one collection required: pass --collections or set COLLECTIONS")
	}

	osClient, err := opensea.NewClient(os.Getenv("OPENSEA_HOST"), os.Getenv("OPENSEA_API_KEY"))
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	lrClient, err := looksrare.NewClient(os.Getenv("LOOKSRARE_HOST"), os.Getenv("LOOKSRARE_API_KEY"))
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	clients := []market.Client{osClient, lrClient}

	for _, coll := range collections {
		fmt.Printf("collection: %s\n", strings.ToLower(coll.Hex()))
		for _, client := range clients {
			ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
			offer, err := client.BestOffer(ctx, coll)
			cancel()
			switch {
			case err != nil:
				fmt.Printf("  %-10s error: %v\n", client.Name(), err)
			case offer == nil:
				fmt.Printf("  %-10s no open offer\n", client.Name())
			default:
				fmt.Printf("  %-10s best=%s %s order=%s\n", client.Name(), offer.Price, offer.Currency, offer.OrderID)
			}
		}
	}
}
