// Package recordlog holds the append-only, timestamp-ordered record log of
// one session.
package recordlog

import (
	"sort"
	"sync"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Log is an append-only sequence of correlated records ordered by
// timestamp. Records are never modified once appended.
type Log struct {
	mu      sync.RWMutex
	records []model.CorrelatedRecord
}

// New returns an empty log with room for capacity records.
func New(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{records: make([]model.CorrelatedRecord, 0, capacity)}
}

// Append adds r. A record that arrives late (its timestamp is older than the
// newest record) is placed after every record with a timestamp <= its own,
// so the log stays non-decreasing and earlier records keep their relative
// order.
func (l *Log) Append(r model.CorrelatedRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.records)
	if n == 0 || l.records[n-1].TimestampMs <= r.TimestampMs {
		l.records = append(l.records, r)
		return
	}
	i := sort.Search(n, func(i int) bool { return l.records[i].TimestampMs > r.TimestampMs })
	l.records = append(l.records, model.CorrelatedRecord{})
	copy(l.records[i+1:], l.records[i:n])
	l.records[i] = r
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns a copy of all records.
func (l *Log) Snapshot() []model.CorrelatedRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.CorrelatedRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Upto returns a copy of the records with timestamp <= ts, in order.
func (l *Log) Upto(ts int64) []model.CorrelatedRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := sort.Search(len(l.records), func(i int) bool { return l.records[i].TimestampMs > ts })
	out := make([]model.CorrelatedRecord, i)
	copy(out, l.records[:i])
	return out
}

// Between returns a copy of the records with from <= timestamp <= to.
func (l *Log) Between(from, to int64) []model.CorrelatedRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lo := sort.Search(len(l.records), func(i int) bool { return l.records[i].TimestampMs >= from })
	hi := sort.Search(len(l.records), func(i int) bool { return l.records[i].TimestampMs > to })
	if lo >= hi {
		return nil
	}
	out := make([]model.CorrelatedRecord, hi-lo)
	copy(out, l.records[lo:hi])
	return out
}

// Clear drops every record. It is used only when a new session starts.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = l.records[:0:0]
}
