package mocked

import (
	"context"
	"sync"
)

type journalKey struct{}

type journal struct {
	mu    sync.Mutex
	undos []func()
}

// Transactor implements ports.Transactor for Memory.
type Transactor struct {
	store *Memory
}

func NewTransactor(store *Memory) *Transactor {
	return &Transactor{store: store}
}

// WithinTransaction joins an outer unit of work when ctx already carries one.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	err := fn(context.WithValue(ctx, journalKey{}, j))
	if err != nil {
		t.store.mu.Lock()
		j.mu.Lock()
		for i := len(j.undos) - 1; i >= 0; i-- {
			j.undos[i]()
		}
		j.mu.Unlock()
		t.store.mu.Unlock()
	}
	return err
}

// remember registers an undo step; callers hold Memory.mu.
func remember(ctx context.Context, undo func()) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	if !ok {
		return
	}
	j.mu.Lock()
	j.undos = append(j.undos, undo)
	j.mu.Unlock()
}
