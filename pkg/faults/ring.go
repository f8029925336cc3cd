package faults

import "sync"

// DefaultLogCapacity bounds the in-memory audit trail.
const DefaultLogCapacity = 100

// Log is a bounded ring of classified records with per-category counters.
// The oldest record is evicted when the ring is full. Counters are cumulative
// until Clear.
type Log struct {
	mu       sync.Mutex
	capacity int
	records  []*Record
	counts   map[Category]int
}

// NewLog creates a Log holding at most capacity records.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultLogCapacity
	}
	return &Log{
		capacity: capacity,
		counts:   make(map[Category]int),
	}
}

// Append records a classification, evicting the oldest entry when full.
func (l *Log) Append(rec *Record) {
	if rec == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) == l.capacity {
		copy(l.records, l.records[1:])
		l.records = l.records[:l.capacity-1]
	}
	l.records = append(l.records, rec)
	l.counts[rec.Category]++
}

// Recent returns up to n records, oldest first.
func (l *Log) Recent(n int) []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]*Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Stats returns the cumulative classification count per category.
func (l *Log) Stats() map[Category]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Category]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Clear drops all retained records and counters.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	l.counts = make(map[Category]int)
}
