package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger. It suits tests and single-instance
// deployments; records are lost on restart.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]Record)}
}

func (m *MemoryLedger) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; ok {
		return ErrDuplicate
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryLedger) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	rec, ok := m.records[id]
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryLedger) MarkConsumed(ctx context.Context, id string, now time.Time) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	switch {
	case !ok:
		return nil, ErrNotFound
	case rec.Consumed():
		return nil, ErrAlreadyConsumed
	case !now.Before(rec.ExpiresAt):
		return nil, ErrExpired
	}

	rec.ConsumedAt = now
	m.records[id] = rec
	return &rec, nil
}

// DeleteExpired drops records that expired before cutoff, consumed or not.
func (m *MemoryLedger) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of records held.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
