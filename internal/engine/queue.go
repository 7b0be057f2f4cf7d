package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

type OpType string

const (
	OpSubmit OpType = "submit"
	OpCancel OpType = "cancel"
	OpRecalc OpType = "recalc"
)

// Operation is one serialized unit of marketplace mutation. Run executes with
// the queue's single execution slot held; everything that touches the ledger
// or a venue's order state happens inside Run.
type Operation struct {
	Type        OpType
	Marketplace string
	Collection  string
	Run         func(ctx context.Context) error
	EnqueuedAt  time.Time
}

// Queue executes operations strictly one at a time, in enqueue order, across
// all collections and marketplaces. Serializing everything through one slot
// trades throughput for the guarantee that a cancel/submit pair for a key can
// never interleave with another operation on the same key.
type Queue struct {
	mu      sync.Mutex
	pending []*Operation
	wake    chan struct{}
	timeout time.Duration
}

// NewQueue returns a queue applying opTimeout to each operation's context
// (0 disables the per-operation timeout).
func NewQueue(opTimeout time.Duration) *Queue {
	return &Queue{
		wake:    make(chan struct{}, 1),
		timeout: opTimeout,
	}
}

// Enqueue appends op. It never blocks and is safe for concurrent callers;
// poll ticks and push handlers both enqueue freely while the worker drains.
func (q *Queue) Enqueue(op *Operation) {
	if op == nil || op.Run == nil {
		return
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	q.pending = append(q.pending, op)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of operations waiting to execute.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) pop() *Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	op := q.pending[0]
	q.pending = q.pending[1:]
	return op
}

// Run is the single worker loop. It drains operations until ctx is cancelled;
// failures and panics are logged and never halt the drain.
func (q *Queue) Run(ctx context.Context) error {
	for {
		op := q.pop()
		if op == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.execute(ctx, op)
	}
}

func (q *Queue) execute(ctx context.Context, op *Operation) {
	opCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[warn] op panic type=%s marketplace=%s collection=%s: %v", op.Type, op.Marketplace, op.Collection, r)
		}
	}()

	if err := op.Run(opCtx); err != nil {
		log.Printf("[warn] op failed type=%s marketplace=%s collection=%s: %v", op.Type, op.Marketplace, op.Collection, err)
	}
}
