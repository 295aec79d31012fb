package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-backend/internal/domains/promotion/model"
	"storefront-backend/pkg/database"
)

const pgUniqueViolation = "23505"

type postgresCouponRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCouponRepository(pool *pgxpool.Pool) CouponRepository {
	return &postgresCouponRepository{pool: pool}
}

const couponColumns = `
	id, code, discount_type, value, min_order_amount, max_usage, usage_count,
	start_date, end_date, is_active, version, created_at, updated_at`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Value,
		&c.MinOrderAmount,
		&c.MaxUsage,
		&c.UsageCount,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresCouponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	coupon.Code = model.NormalizeCode(coupon.Code)

	query := `
		INSERT INTO coupons (
			id, code, discount_type, value, min_order_amount, max_usage, usage_count,
			start_date, end_date, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
		RETURNING version, created_at, updated_at`

	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		coupon.ID,
		coupon.Code,
		coupon.Type,
		coupon.Value,
		coupon.MinOrderAmount,
		coupon.MaxUsage,
		coupon.StartDate,
		coupon.EndDate,
		coupon.IsActive,
	).Scan(&coupon.Version, &coupon.CreatedAt, &coupon.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", model.ErrCouponDuplicateCode, coupon.Code)
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	coupon.UsageCount = 0
	return nil
}

func (r *postgresCouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := `SELECT` + couponColumns + ` FROM coupons WHERE code = $1`

	c, err := scanCoupon(database.Conn(ctx, r.pool).QueryRow(ctx, query, model.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return c, nil
}

func (r *postgresCouponRepository) Mutate(ctx context.Context, code string, fn func(*model.Coupon) error) (*model.Coupon, error) {
	return database.WithTransactionResult(ctx, r.pool, func(tx pgx.Tx) (*model.Coupon, error) {
		lockQuery := `SELECT` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

		c, err := scanCoupon(tx.QueryRow(ctx, lockQuery, model.NormalizeCode(code)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, model.ErrCouponNotFound
			}
			return nil, fmt.Errorf("failed to lock coupon: %w", err)
		}

		if err := fn(c); err != nil {
			return nil, err
		}

		updateQuery := `
			UPDATE coupons
			SET usage_count = $3,
				is_active = $4,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at`

		err = tx.QueryRow(ctx, updateQuery, c.ID, c.Version, c.UsageCount, c.IsActive).Scan(&c.Version, &c.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, model.ErrCouponUpdateConflict
			}
			return nil, fmt.Errorf("failed to update coupon: %w", err)
		}
		return c, nil
	})
}
