package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-backend/internal/domains/order/model"
	"storefront-backend/pkg/database"
)

// =====================================================
// POSTGRES REPOSITORY IMPLEMENTATION
// =====================================================
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

type postgresOrderRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &postgresOrderRepository{
		pool: pool,
	}
}

// =====================================================
// CREATE ORDER
// =====================================================

func (r *postgresOrderRepository) Create(ctx context.Context, order *model.Order) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, order_number, user_id, status, payment_method, payment_status,
				recipient_name, phone, shipping_address, customer_note,
				subtotal, discount, shipping_fee, total,
				coupon_code, coupon_reverted, version, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10,
				$11, $12, $13, $14,
				$15, $16, $17, $18, $19
			)`,
			order.ID,
			order.OrderNumber,
			order.UserID,
			order.Status,
			order.PaymentMethod,
			order.PaymentStatus,
			order.Shipping.RecipientName,
			order.Shipping.Phone,
			order.Shipping.Address,
			order.Shipping.Note,
			order.Subtotal,
			order.Discount,
			order.ShippingFee,
			order.Total,
			order.CouponCode,
			order.CouponReverted,
			order.Version,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return fmt.Errorf("%w: %s", model.ErrOrderNumberTaken, order.OrderNumber)
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (
					id, order_id, position, variant_id, product_id, product_name,
					size, color, unit_price, quantity, line_total, released
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				item.ID, order.ID, item.Position, item.VariantID, item.ProductID, item.ProductName,
				item.Size, item.Color, item.UnitPrice, item.Quantity, item.LineTotal, item.Released,
			)
		}
		queueHistory(batch, order.ID, order.History.Entries())

		return sendBatch(ctx, tx, batch)
	})
}

func queueHistory(batch *pgx.Batch, orderID uuid.UUID, entries []model.StatusEntry) {
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO order_status_history (order_id, seq, status, note, changed_by, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, e.Seq, e.Status, e.Note, e.ChangedBy, e.ChangedAt,
		)
	}
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return br.Close()
}

// =====================================================
// GET ORDER
// =====================================================

func (r *postgresOrderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	q := database.Conn(ctx, r.pool)

	var order model.Order
	err := q.QueryRow(ctx, `
		SELECT
			id, order_number, user_id, status, payment_method, payment_status,
			recipient_name, phone, shipping_address, customer_note,
			subtotal, discount, shipping_fee, total,
			coupon_code, coupon_reverted, cancellation_reason, paid_at,
			version, created_at, updated_at
		FROM orders
		WHERE id = $1`, orderID,
	).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Status,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Shipping.RecipientName,
		&order.Shipping.Phone,
		&order.Shipping.Address,
		&order.Shipping.Note,
		&order.Subtotal,
		&order.Discount,
		&order.ShippingFee,
		&order.Total,
		&order.CouponCode,
		&order.CouponReverted,
		&order.CancellationReason,
		&order.PaidAt,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by id: %w", err)
	}

	items, err := r.getItems(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	entries, err := r.getHistory(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.History = model.RestoreStatusHistory(entries)

	return &order, nil
}

func (r *postgresOrderRepository) getItems(ctx context.Context, q database.Querier, orderID uuid.UUID) ([]model.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, position, variant_id, product_id, product_name,
		       size, color, unit_price, quantity, line_total, released
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.Position, &it.VariantID, &it.ProductID, &it.ProductName,
			&it.Size, &it.Color, &it.UnitPrice, &it.Quantity, &it.LineTotal, &it.Released,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *postgresOrderRepository) getHistory(ctx context.Context, q database.Querier, orderID uuid.UUID) ([]model.StatusEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT seq, status, note, changed_by, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status history: %w", err)
	}
	defer rows.Close()

	var entries []model.StatusEntry
	for rows.Next() {
		var e model.StatusEntry
		if err := rows.Scan(&e.Seq, &e.Status, &e.Note, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =====================================================
// LIST ORDERS
// =====================================================

func buildWhere(filter model.OrderFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("o.status = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *postgresOrderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.OrderSummary, error) {
	where, args := buildWhere(filter)
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT o.id, o.order_number, o.user_id, o.status, o.payment_method, o.payment_status,
		       o.total, COALESCE(SUM(i.quantity), 0), o.created_at
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		%s
		GROUP BY o.id
		ORDER BY o.created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.OrderSummary, 0, filter.Limit)
	for rows.Next() {
		var s model.OrderSummary
		if err := rows.Scan(
			&s.ID, &s.OrderNumber, &s.UserID, &s.Status, &s.PaymentMethod, &s.PaymentStatus,
			&s.Total, &s.ItemCount, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *postgresOrderRepository) Count(ctx context.Context, filter model.OrderFilter) (int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders o "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return total, nil
}

// =====================================================
// UPDATE ORDER (OPTIMISTIC LOCKING)
// =====================================================

func (r *postgresOrderRepository) Update(ctx context.Context, order *model.Order, historyLen int) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		var newVersion int
		err := tx.QueryRow(ctx, `
			UPDATE orders
			SET status = $1,
			    payment_status = $2,
			    coupon_reverted = $3,
			    cancellation_reason = $4,
			    paid_at = $5,
			    version = version + 1,
			    updated_at = $6
			WHERE id = $7 AND version = $8
			RETURNING version`,
			order.Status,
			order.PaymentStatus,
			order.CouponReverted,
			order.CancellationReason,
			order.PaidAt,
			order.UpdatedAt,
			order.ID,
			order.Version,
		).Scan(&newVersion)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrVersionMismatch
			}
			return fmt.Errorf("failed to update order: %w", err)
		}

		batch := &pgx.Batch{}
		var released []uuid.UUID
		for _, item := range order.Items {
			if item.Released {
				released = append(released, item.ID)
			}
		}
		if len(released) > 0 {
			batch.Queue(`UPDATE order_items SET released = TRUE WHERE order_id = $1 AND id = ANY($2)`, order.ID, released)
		}
		queueHistory(batch, order.ID, order.History.Since(historyLen))

		if err := sendBatch(ctx, tx, batch); err != nil {
			return err
		}

		order.Version = newVersion
		return nil
	})
}

// =====================================================
// ROW LOCK
// =====================================================

// WithOrderLock takes the order row FOR UPDATE inside the caller's
// transaction. The lock lives until that transaction ends; a wait cut short
// by lock_timeout surfaces as a version conflict.
func (r *postgresOrderRepository) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrOrderNotFound
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
				return fmt.Errorf("%w: order %s is locked", model.ErrVersionMismatch, orderID)
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}
		return fn(database.ContextWithTx(ctx, tx))
	})
}

// =====================================================
// BACKGROUND QUERIES
// =====================================================

func (r *postgresOrderRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	return r.collectIDs(ctx, `
		SELECT id FROM orders
		WHERE status = $1
		  AND payment_status <> $2
		  AND payment_method <> $3
		  AND created_at < $4
		ORDER BY created_at
		LIMIT $5`,
		model.OrderStatusPending, model.PaymentStatusPaid, model.PaymentMethodCOD, createdBefore, limit,
	)
}

func (r *postgresOrderRepository) ListNeedingReversal(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return r.collectIDs(ctx, `
		SELECT o.id FROM orders o
		WHERE o.status IN ($1, $2)
		  AND (
		    (o.coupon_code IS NOT NULL AND NOT o.coupon_reverted)
		    OR EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND NOT i.released)
		  )
		ORDER BY o.updated_at
		LIMIT $3`,
		model.OrderStatusCancelled, model.OrderStatusRefunded, limit,
	)
}

func (r *postgresOrderRepository) collectIDs(ctx context.Context, query string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order ids: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect order ids: %w", err)
	}
	return ids, nil
}
