// Package decisionlog implements the bounded, concurrency-safe audit
// trail of evaluation outcomes.
package decisionlog

import (
	"sync"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// Capacity is the fixed size of the ring buffer. Older records are
// evicted in arrival order once the log is full.
const Capacity = 50

// Log is a bounded FIFO of policy.DecisionRecord, safe for concurrent
// Append and Recent calls. It holds no persistence: a restart loses
// history, by design — durable storage is out of scope.
type Log struct {
	mu      sync.RWMutex
	records []policy.DecisionRecord
}

// New returns an empty Log.
func New() *Log {
	return &Log{records: make([]policy.DecisionRecord, 0, Capacity)}
}

// Append adds record to the log, evicting the oldest entry if the log
// is already at Capacity.
func (l *Log) Append(record policy.DecisionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) >= Capacity {
		copy(l.records, l.records[1:])
		l.records = l.records[:len(l.records)-1]
	}
	l.records = append(l.records, record)
}

// Recent returns up to min(limit, Capacity) most-recently-appended
// records in natural insertion (chronological) order. A non-positive
// limit returns an empty slice.
func (l *Log) Recent(limit int) []policy.DecisionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		return nil
	}
	if limit > len(l.records) {
		limit = len(l.records)
	}
	start := len(l.records) - limit
	out := make([]policy.DecisionRecord, limit)
	copy(out, l.records[start:])
	return out
}

// Len reports the number of records currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
