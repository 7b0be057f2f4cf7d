package store

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "bid:opensea:0xabc"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, "bid:opensea:0xabc", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := m.Get(ctx, "bid:opensea:0xabc")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := m.Delete(ctx, "bid:opensea:0xabc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "bid:opensea:0xabc"); ok {
		t.Fatalf("expected key deleted")
	}
}

func TestMemoryKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"bid:opensea:a", "bid:opensea:b", "bid:looksrare:a", "price:opensea:a"} {
		if err := m.Set(ctx, k, "x"); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	keys, err := m.Keys(ctx, "bid:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	want := []string{"bid:looksrare:a", "bid:opensea:a", "bid:opensea:b"}
	if len(keys) != len(want) {
		t.Fatalf("keys=%v want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys=%v want %v", keys, want)
		}
	}
}

func TestMemoryPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	ch, err := m.Subscribe(ctx, "bids:opensea")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := m.Publish(ctx, "bids:opensea", "changed"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-ch:
		if msg != "changed" {
			t.Fatalf("msg=%q want %q", msg, "changed")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for close")
	}
}
