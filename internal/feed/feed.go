// Package feed receives push invalidation events over a websocket: a venue
// announces that a previously observed order no longer exists (filled,
// cancelled, or expired). Delivery is best effort; the polling loop remains
// the source of truth.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultPingInterval = 10 * time.Second

// DefaultReconnectDelay is the fixed pause before re-subscribing after a
// connection loss.
const DefaultReconnectDelay = 3 * time.Second

// Event is the invalidation message envelope. The wire carries no venue
// identifier; each feed connection belongs to exactly one venue and the
// consumer supplies it.
type Event struct {
	Event      string `json:"event"`
	Collection string `json:"collection"`
	OrderID    string `json:"orderId"`
}

const EventInvalidate = "invalidate"

type subscribeRequest struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type Options struct {
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	OutBuffer      int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	return o
}

// Start connects to the invalidation feed and emits decoded events for the
// given per-collection topics. It reconnects after a fixed (jittered) delay on
// any connection loss and keeps the session alive with periodic pings.
func Start(ctx context.Context, url string, topics []string, opts Options) (<-chan Event, <-chan error) {
	opts = opts.withDefaults()

	out := make(chan Event, opts.OutBuffer)
	errs := make(chan error, 16)

	go func() {
		defer close(out)
		defer close(errs)

		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				emitErrNonBlocking(errs, fmt.Errorf("feed dial: %w", err))
				sleepWithJitter(ctx, opts.ReconnectDelay)
				continue
			}

			if err := runSession(ctx, conn, topics, opts.PingInterval, out, errs); err != nil && ctx.Err() == nil {
				emitErrNonBlocking(errs, err)
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, opts.ReconnectDelay)
		}
	}()

	return out, errs
}

func runSession(
	ctx context.Context,
	conn *websocket.Conn,
	topics []string,
	pingInterval time.Duration,
	out chan<- Event,
	errs chan<- error,
) error {
	req := subscribeRequest{Action: "subscribe", Topics: topics}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("feed subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("feed subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if werr != nil {
					emitErrNonBlocking(errs, fmt.Errorf("feed ping: %w", werr))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// stop also releases this watcher when the session dies on its own
	// (read or ping failure), not only on cancellation; otherwise every
	// reconnect cycle would leave one goroutine behind.
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed read: %w", err)
		}

		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || string(msg) == "pong" || string(msg) == "ping" {
			continue
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			emitErrNonBlocking(errs, fmt.Errorf("feed decode: %w", err))
			continue
		}
		if ev.Event != EventInvalidate {
			continue
		}

		select {
		case out <- ev:
		default:
			// Dropping is safe: the next poll tick re-derives the same state.
		}
	}
}

func emitErrNonBlocking(ch chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int63n(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
