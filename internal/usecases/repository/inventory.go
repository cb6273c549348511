package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/pkg/database"
)

type InventoryRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewInventoryRepository(logger *slog.Logger, pg *database.Postgres) *InventoryRepository {
	return &InventoryRepository{logger: logger, db: pg.DBGetter}
}

// ClaimUnits flips up to quantity available units to sold. SKIP LOCKED keeps concurrent buyers
// off each other's rows; the state predicate in the UPDATE is the per-unit compare-and-set.
func (r *InventoryRepository) ClaimUnits(ctx context.Context, itemID string, quantity int, buyerID int64) ([]string, error) {
	rows, err := r.db(ctx).Query(ctx, `
		WITH picked AS (
			SELECT id FROM inventory_units
			WHERE item_id = $1 AND state = 'available'
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE inventory_units u
		SET state = 'sold', buyer_id = $3, sold_at = now()
		FROM picked
		WHERE u.id = picked.id AND u.state = 'available'
		RETURNING u.id`, itemID, quantity, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim units of %s: %w", itemID, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect claimed units: %w", err)
	}
	return ids, nil
}

// ReleaseUnits puts back units still held by buyerID.
func (r *InventoryRepository) ReleaseUnits(ctx context.Context, unitIDs []string, buyerID int64) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE inventory_units
		SET state = 'available', buyer_id = NULL, sold_at = NULL
		WHERE id = ANY($1) AND state = 'sold' AND buyer_id = $2`, unitIDs, buyerID)
	if err != nil {
		return 0, fmt.Errorf("failed to release units: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *InventoryRepository) GetUnits(ctx context.Context, unitIDs []string) ([]entities.InventoryUnit, error) {
	query, args, err := psql.Select("id", "item_id", "payload_name", "state", "buyer_id", "sold_at", "created_at").
		From("inventory_units").
		Where(sq.Eq{"id": unitIDs}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build units query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}

	units, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.InventoryUnit])
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to collect unit rows", "error", err)
		return nil, err
	}
	return units, nil
}

func (r *InventoryRepository) CountAvailable(ctx context.Context, itemID string) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		"SELECT count(*) FROM inventory_units WHERE item_id = $1 AND state = 'available'", itemID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stock of %s: %w", itemID, err)
	}
	return count, nil
}
