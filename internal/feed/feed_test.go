package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStartSubscribesAndDeliversInvalidations(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("decode subscribe: %v", err)
			return
		}
		if req.Action != "subscribe" || len(req.Topics) != 1 || req.Topics[0] != "collection:0xabc" {
			t.Errorf("unexpected subscribe request: %+v", req)
			return
		}

		// A non-invalidate message must be filtered out.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"heartbeat"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"invalidate","collection":"0xabc","orderId":"o-1"}`))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	events, _ := Start(ctx, wsURL, []string{"collection:0xabc"}, Options{})

	select {
	case ev := <-events:
		if ev.Event != EventInvalidate || ev.Collection != "0xabc" || ev.OrderID != "o-1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for invalidation event")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// Unreachable endpoint: the loop should keep retrying until cancelled.
	events, _ := Start(ctx, "ws://127.0.0.1:1", nil, Options{ReconnectDelay: 10 * time.Millisecond})

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected closed event channel")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("event channel not closed after cancel")
	}
}

func TestStartReleasesSessionGoroutines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var sessions int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&sessions, 1)
		_, _, _ = conn.ReadMessage()
		// Drop immediately, forcing the client through a reconnect cycle.
		conn.Close()
	}))
	defer srv.Close()

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	events, _ := Start(ctx, wsURL, nil, Options{ReconnectDelay: 10 * time.Millisecond, PingInterval: 5 * time.Millisecond})

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&sessions) < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("feed stopped reconnecting after %d sessions", atomic.LoadInt32(&sessions))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// Drain anything buffered; the channel must close eventually.
			for range events {
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("event channel not closed after cancel")
	}

	// Each dropped session must have released its goroutines; a small slack
	// covers the test server's own handlers winding down.
	deadline = time.Now().Add(3 * time.Second)
	for runtime.NumGoroutine() > before+3 {
		if time.Now().After(deadline) {
			t.Fatalf("got %d goroutines, want <= %d after shutdown", runtime.NumGoroutine(), before+3)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.PingInterval != DefaultPingInterval || o.ReconnectDelay != DefaultReconnectDelay || o.OutBuffer != 256 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}
