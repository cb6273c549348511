package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/pkg/database"
)

type CatalogRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewCatalogRepository(logger *slog.Logger, pg *database.Postgres) *CatalogRepository {
	return &CatalogRepository{logger: logger, db: pg.DBGetter}
}

func (r *CatalogRepository) GetItem(ctx context.Context, itemID string) (*entities.CatalogItem, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT id, name, category, base_price, markup, active FROM catalog_items WHERE id = $1", itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item %s: %w", itemID, err)
	}

	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.CatalogItem])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect item row: %w", err)
	}
	return &item, nil
}
