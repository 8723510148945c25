// Package audit maintains the tamper-evident compliance ledger.
// Entries are hash-chained JSONL appended by a background writer; a
// failure here is logged and never reaches the scoring request.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/openaudit/kestrel/internal/domain"
)

const (
	writerChanSize = 4096
	closeTimeout   = 2 * time.Second
)

// Logger implements domain.AuditLogger. Append is non-blocking: a
// background goroutine drains the channel and writes the chain, so a
// slow disk never holds up a prediction.
type Logger struct {
	path    string
	logger  *slog.Logger
	ch      chan domain.AuditEntry
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Int64

	// prevHash is only touched by the writer goroutine.
	prevHash string
}

// New opens the ledger and starts the background writer. The chain
// resumes from the last parseable entry of an existing file.
func New(path string, logger *slog.Logger) (*Logger, error) {
	l := &Logger{
		path:   path,
		logger: logger.With("component", "audit"),
		ch:     make(chan domain.AuditEntry, writerChanSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	prev, err := lastEntryHash(path)
	if err != nil {
		return nil, err
	}
	l.prevHash = prev

	go l.run()
	return l, nil
}

// Append enqueues one ledger entry. It never blocks and never fails;
// a full queue drops the entry and bumps a counter.
func (l *Logger) Append(tx domain.Transaction, p domain.Prediction, predictionID string) {
	entry := domain.AuditEntry{
		Timestamp:    time.Now().UTC(),
		PredictionID: predictionID,
		Input:        tx,
		Output:       p,
		ModelVersion: p.ModelVersion,
		TrainedAt:    p.TrainedAt,
	}
	select {
	case l.ch <- entry:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("audit queue full, dropping entries", "dropped", n)
		}
	}
}

// Dropped returns how many entries were lost to a full queue.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close drains pending entries and stops the writer.
func (l *Logger) Close() error {
	select {
	case l.stop <- struct{}{}:
	default:
	}
	select {
	case <-l.done:
	case <-time.After(closeTimeout):
		l.logger.Warn("audit writer did not drain before close timeout")
	}
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for {
		select {
		case entry := <-l.ch:
			l.handle(entry)
		case <-l.stop:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case entry := <-l.ch:
					l.handle(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) handle(entry domain.AuditEntry) {
	if err := l.write(entry); err != nil {
		l.logger.Warn("audit write failed", "prediction_id", entry.PredictionID, "error", err)
	}
}

func (l *Logger) write(entry domain.AuditEntry) error {
	entry.PrevHash = l.prevHash

	// Hash over the canonical JSON with EntryHash blank, chained to
	// the predecessor.
	entry.EntryHash = ""
	canonical, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	sum := sha256.Sum256(append([]byte(l.prevHash), canonical...))
	entry.EntryHash = hex.EncodeToString(sum[:])

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	l.prevHash = entry.EntryHash
	return nil
}

// lastEntryHash reads the tail of an existing ledger so the chain
// continues across restarts. Corrupt lines are skipped.
func lastEntryHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read audit log: %w", err)
	}

	var last string
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var entry domain.AuditEntry
			if json.Unmarshal(line, &entry) == nil && entry.EntryHash != "" {
				last = entry.EntryHash
			}
		}
	}
	return last, nil
}
