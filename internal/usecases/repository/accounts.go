package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/pkg/database"
)

type AccountsRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewAccountsRepository(logger *slog.Logger, pg *database.Postgres) *AccountsRepository {
	return &AccountsRepository{logger: logger, db: pg.DBGetter}
}

// Credit creates the account on first top-up.
func (r *AccountsRepository) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO accounts (user_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance`, userID, amount).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit account %d: %w", userID, err)
	}
	return balance, nil
}

// Debit decrements only while the balance covers amount, in the same statement.
func (r *AccountsRepository) Debit(ctx context.Context, userID int64, amount decimal.Decimal, units int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db(ctx).QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance - $2,
		    lifetime_spend = lifetime_spend + $2,
		    purchase_count = purchase_count + $3,
		    updated_at = now()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance`, userID, amount, units).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ports.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit account %d: %w", userID, err)
	}
	return balance, nil
}

func (r *AccountsRepository) GetAccount(ctx context.Context, userID int64) (*entities.UserAccount, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT user_id, balance, lifetime_spend, purchase_count, updated_at FROM accounts WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account %d: %w", userID, err)
	}

	account, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.UserAccount])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect account row: %w", err)
	}
	return &account, nil
}
