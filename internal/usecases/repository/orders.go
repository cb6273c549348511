package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/pkg/database"
)

const (
	uniqueViolation    = "23505"
	pendingAmountIndex = "recharge_orders_pending_amount_uq"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "user_id", "network", "token", "address", "base_amount", "expected_amount", "unique_code",
	"status", "created_at", "expire_at", "paid_at", "canceled_at", "tx_id", "from_address",
}

type OrdersRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewOrdersRepository(logger *slog.Logger, pg *database.Postgres) *OrdersRepository {
	return &OrdersRepository{logger: logger, db: pg.DBGetter}
}

func (r *OrdersRepository) CreateOrder(ctx context.Context, order *entities.RechargeOrder) error {
	query, args, err := psql.Insert("recharge_orders").
		Columns("id", "user_id", "network", "token", "address", "base_amount", "expected_amount",
			"unique_code", "status", "created_at", "expire_at").
		Values(order.ID, order.UserID, order.Network, order.Token, order.Address, order.BaseAmount,
			order.ExpectedAmount, order.UniqueCode, order.Status, order.CreatedAt, order.ExpireAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert order query: %w", err)
	}

	if _, err = r.db(ctx).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == pendingAmountIndex {
			return ports.ErrAmountInUse
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *OrdersRepository) GetOrder(ctx context.Context, id uuid.UUID) (*entities.RechargeOrder, error) {
	orders, err := r.selectOrders(ctx, psql.Select(orderColumns...).From("recharge_orders").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ports.ErrNotFound
	}
	return &orders[0], nil
}

// Transition is a compare-and-set on status. Zero affected rows means someone else moved the order first.
func (r *OrdersRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to entities.OrderStatus,
	fields entities.TransitionFields,
) error {
	update := psql.Update("recharge_orders").
		Set("status", to).
		Where(sq.Eq{"id": id, "status": from})
	if fields.PaidAt != nil {
		update = update.Set("paid_at", *fields.PaidAt)
	}
	if fields.CanceledAt != nil {
		update = update.Set("canceled_at", *fields.CanceledAt)
	}
	if fields.TxID != nil {
		update = update.Set("tx_id", *fields.TxID)
	}
	if fields.FromAddress != nil {
		update = update.Set("from_address", *fields.FromAddress)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build transition query: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrTransferAlreadyClaimed
		}
		return fmt.Errorf("failed to transition order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrConflict
	}
	return nil
}

func (r *OrdersRepository) FindPendingByAddress(
	ctx context.Context,
	address string,
	now time.Time,
	limit int,
) ([]entities.RechargeOrder, error) {
	return r.selectOrders(ctx, psql.Select(orderColumns...).
		From("recharge_orders").
		Where(sq.Eq{"status": entities.OrderStatusPending}).
		Where("lower(address) = lower(?)", address).
		Where(sq.GtOrEq{"expire_at": now}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)))
}

func (r *OrdersRepository) FindExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]entities.RechargeOrder, error) {
	return r.selectOrders(ctx, psql.Select(orderColumns...).
		From("recharge_orders").
		Where(sq.Eq{"status": entities.OrderStatusPending}).
		Where(sq.Lt{"expire_at": now}).
		OrderBy("expire_at").
		Limit(uint64(limit)))
}

func (r *OrdersRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		"UPDATE recharge_orders SET status = 'expired' WHERE status = 'pending' AND expire_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpectedAmountInUse checks pending orders and orders paid at or after paidSince on the same address.
func (r *OrdersRepository) ExpectedAmountInUse(
	ctx context.Context,
	address string,
	expected decimal.Decimal,
	paidSince time.Time,
) (bool, error) {
	var inUse bool
	err := r.db(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recharge_orders
			WHERE lower(address) = lower($1)
			  AND expected_amount = $2
			  AND (status = 'pending' OR (status = 'paid' AND paid_at >= $3))
		)`, address, expected, paidSince).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("failed to check expected amount: %w", err)
	}
	return inUse, nil
}

func (r *OrdersRepository) FindUserOrders(
	ctx context.Context,
	userID int64,
	includeCanceled bool,
	limit int,
) ([]entities.RechargeOrder, error) {
	sel := psql.Select(orderColumns...).
		From("recharge_orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if !includeCanceled {
		sel = sel.Where(sq.NotEq{"status": entities.OrderStatusCanceled})
	}
	return r.selectOrders(ctx, sel)
}

// FindRecentlyClosed returns orders on address that expired or were canceled after since.
func (r *OrdersRepository) FindRecentlyClosed(
	ctx context.Context,
	address string,
	since time.Time,
	limit int,
) ([]entities.RechargeOrder, error) {
	return r.selectOrders(ctx, psql.Select(orderColumns...).
		From("recharge_orders").
		Where(sq.Eq{"status": []entities.OrderStatus{entities.OrderStatusExpired, entities.OrderStatusCanceled}}).
		Where("lower(address) = lower(?)", address).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)))
}

func (r *OrdersRepository) IsTransferClaimed(ctx context.Context, txID string) (bool, error) {
	var claimed bool
	err := r.db(ctx).QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM recharge_orders WHERE tx_id = $1)", txID).Scan(&claimed)
	if err != nil {
		return false, fmt.Errorf("failed to look up transfer %s: %w", txID, err)
	}
	return claimed, nil
}

func (r *OrdersRepository) selectOrders(ctx context.Context, sel sq.SelectBuilder) ([]entities.RechargeOrder, error) {
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build orders query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.RechargeOrder])
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to collect orders rows", "error", err)
		return nil, err
	}
	return orders, nil
}
