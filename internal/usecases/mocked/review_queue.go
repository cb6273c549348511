package mocked

import (
	"context"
	"sort"
	"time"

	"github.com/sand/storefront/backend/internal/entities"
)

func (m *Memory) Flag(ctx context.Context, flag *entities.ReconciliationFlag) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flags[flag.TxID]; ok {
		return false, nil
	}
	m.flagSeq++
	flag.ID = m.flagSeq
	flag.CreatedAt = time.Now()
	stored := *flag
	m.flags[flag.TxID] = &stored
	remember(ctx, func() { delete(m.flags, stored.TxID) })
	return true, nil
}

func (m *Memory) ListOpen(_ context.Context, limit int) ([]entities.ReconciliationFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entities.ReconciliationFlag, 0, len(m.flags))
	for _, f := range m.flags {
		if !f.Resolved {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
