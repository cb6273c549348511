package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/pkg/database"
)

// ReviewQueueRepository хранит переводы, требующие ручной сверки
type ReviewQueueRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewReviewQueueRepository(logger *slog.Logger, pg *database.Postgres) *ReviewQueueRepository {
	return &ReviewQueueRepository{logger: logger, db: pg.DBGetter}
}

// Flag inserts once per tx id; a repeated flag is a no-op and returns false.
func (r *ReviewQueueRepository) Flag(ctx context.Context, flag *entities.ReconciliationFlag) (bool, error) {
	query := `INSERT INTO reconciliation_flags
		(tx_id, order_id, user_id, address, from_address, amount, transfer_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_id) DO NOTHING
		RETURNING id, created_at`

	err := r.db(ctx).QueryRow(ctx, query,
		flag.TxID,
		flag.OrderID,
		flag.UserID,
		flag.Address,
		flag.FromAddress,
		flag.Amount,
		flag.TransferAt,
		flag.Reason,
	).Scan(&flag.ID, &flag.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to save reconciliation flag: %w", err)
	}
	return true, nil
}

func (r *ReviewQueueRepository) ListOpen(ctx context.Context, limit int) ([]entities.ReconciliationFlag, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, tx_id, order_id, user_id, address, from_address, amount, transfer_at, reason, resolved, created_at
		FROM reconciliation_flags
		WHERE NOT resolved
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation flags: %w", err)
	}

	flags, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.ReconciliationFlag])
	if err != nil {
		return nil, fmt.Errorf("failed to collect reconciliation flags: %w", err)
	}
	return flags, nil
}
