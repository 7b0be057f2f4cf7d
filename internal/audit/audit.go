// Package audit appends bid lifecycle events as newline-delimited JSON so a
// run can be replayed or tailed. A nil Log discards everything, which keeps
// call sites unconditional.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one audit record. Amounts are decimal strings in the payment token.
type Event struct {
	TsMs        int64  `json:"ts_ms"`
	Event       string `json:"event"`
	Marketplace string `json:"marketplace,omitempty"`
	Collection  string `json:"collection,omitempty"`
	Amount      string `json:"amount,omitempty"`
	QuoteID     string `json:"quote_id,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Ok          bool   `json:"ok"`
	Err         string `json:"err,omitempty"`
}

type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// New returns an audit log appending to path, or nil when path is blank.
func New(path string) *Log {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Log{path: path}
}

func (l *Log) ensureOpenLocked() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Record appends ev with the current timestamp. Failures are logged, never
// propagated; the audit trail must not interfere with bidding.
func (l *Log) Record(ev Event) {
	if l == nil {
		return
	}
	if ev.TsMs == 0 {
		ev.TsMs = time.Now().UnixMilli()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[warn] audit marshal: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureOpenLocked(); err != nil {
		log.Printf("[warn] audit open %s: %v", l.path, err)
		return
	}
	if _, err := l.w.Write(b); err != nil {
		log.Printf("[warn] audit write: %v", err)
		return
	}
	if err := l.w.WriteByte('\n'); err != nil {
		log.Printf("[warn] audit write: %v", err)
		return
	}
	// Flush per record so tailers see events as they happen.
	if err := l.w.Flush(); err != nil {
		log.Printf("[warn] audit flush: %v", err)
	}
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	if l.w != nil {
		if err := l.w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.w = nil
	l.file = nil

	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
