package mocked

import (
	"context"
	"sync"

	"github.com/sand/storefront/backend/internal/entities"
)

// Ledger serves a fixed set of transfers and counts how often it was asked.
type Ledger struct {
	mu        sync.Mutex
	transfers []entities.LedgerTransfer
	err       error
	calls     int
}

func NewLedger(transfers ...entities.LedgerTransfer) *Ledger {
	return &Ledger{transfers: transfers}
}

func (l *Ledger) Add(transfers ...entities.LedgerTransfer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transfers = append(transfers, l.transfers...)
}

func (l *Ledger) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *Ledger) Fetch(_ context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.err != nil {
		return []entities.LedgerTransfer{}, l.err
	}
	out := make([]entities.LedgerTransfer, 0, len(l.transfers))
	for _, t := range l.transfers {
		if t.PaysTo(address) {
			out = append(out, t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
