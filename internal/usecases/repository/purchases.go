package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/pkg/database"
)

var purchaseColumns = []string{
	"id", "buyer_id", "item_id", "item_name", "category", "quantity", "base_price", "markup",
	"unit_price", "total_cost", "profit", "unit_ids", "created_at",
}

type PurchasesRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewPurchasesRepository(logger *slog.Logger, pg *database.Postgres) *PurchasesRepository {
	return &PurchasesRepository{logger: logger, db: pg.DBGetter}
}

func (r *PurchasesRepository) InsertPurchase(ctx context.Context, p *entities.PurchaseOrder) error {
	query, args, err := psql.Insert("purchases").
		Columns(purchaseColumns...).
		Values(p.ID, p.BuyerID, p.ItemID, p.ItemName, p.Category, p.Quantity, p.BasePrice, p.Markup,
			p.UnitPrice, p.TotalCost, p.Profit, p.UnitIDs, p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert purchase query: %w", err)
	}
	if _, err = r.db(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func (r *PurchasesRepository) GetPurchase(ctx context.Context, id uuid.UUID) (*entities.PurchaseOrder, error) {
	query, args, err := psql.Select(purchaseColumns...).From("purchases").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build purchase query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase %s: %w", id, err)
	}

	purchase, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.PurchaseOrder])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect purchase row: %w", err)
	}
	return &purchase, nil
}

// FindUserPurchases returns one page, newest first, and the total count for the buyer.
func (r *PurchasesRepository) FindUserPurchases(
	ctx context.Context,
	buyerID int64,
	offset, limit int,
) ([]entities.PurchaseOrder, int64, error) {
	var total int64
	if err := r.db(ctx).QueryRow(ctx, "SELECT count(*) FROM purchases WHERE buyer_id = $1", buyerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	query, args, err := psql.Select(purchaseColumns...).
		From("purchases").
		Where("buyer_id = ?", buyerID).
		OrderBy("created_at DESC").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build purchases query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query purchases: %w", err)
	}

	purchases, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.PurchaseOrder])
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to collect purchase rows", "error", err)
		return nil, 0, err
	}
	return purchases, total, nil
}
