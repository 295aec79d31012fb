package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-backend/internal/domains/inventory/model"
	"storefront-backend/pkg/database"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(pool *pgxpool.Pool) RepositoryInterface {
	return &postgresRepository{pool: pool}
}

const variantColumns = `
	v.id, v.product_id, p.name, p.base_price, v.additional_price,
	v.size, v.color, v.stock, v.status, v.version, v.updated_at`

func scanVariant(row pgx.Row) (*model.Variant, error) {
	var v model.Variant
	err := row.Scan(
		&v.ID,
		&v.ProductID,
		&v.ProductName,
		&v.BasePrice,
		&v.AdditionalPrice,
		&v.Size,
		&v.Color,
		&v.Stock,
		&v.Status,
		&v.Version,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *postgresRepository) GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error) {
	query := `SELECT` + variantColumns + `
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	v, err := scanVariant(database.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NewVariantNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}
	return v, nil
}

func (r *postgresRepository) GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Variant, error) {
	result := make(map[uuid.UUID]*model.Variant, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT` + variantColumns + `
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		result[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variant rows: %w", err)
	}

	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, model.NewVariantNotFoundError(id)
		}
	}
	return result, nil
}

func (r *postgresRepository) ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*model.Variant, error) {
	return r.adjust(ctx, id, -quantity, model.MovementReserve)
}

func (r *postgresRepository) ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (*model.Variant, error) {
	return r.adjust(ctx, id, quantity, model.MovementRelease)
}

// adjust locks the variant row, applies delta, bumps the version and writes
// the movement audit row, all inside one transaction (or savepoint).
func (r *postgresRepository) adjust(ctx context.Context, id uuid.UUID, delta int, movementType string) (*model.Variant, error) {
	return database.WithTransactionResult(ctx, r.pool, func(tx pgx.Tx) (*model.Variant, error) {
		lockQuery := `SELECT` + variantColumns + `
			FROM product_variants v
			JOIN products p ON p.id = v.product_id
			WHERE v.id = $1
			FOR UPDATE OF v`

		v, err := scanVariant(tx.QueryRow(ctx, lockQuery, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, model.NewVariantNotFoundError(id)
			}
			return nil, fmt.Errorf("failed to lock variant: %w", err)
		}

		before := v.Stock
		if before+delta < 0 {
			return nil, model.NewInsufficientStockError(id, before, -delta)
		}
		v.Stock = before + delta
		v.RecomputeStatus()

		updateQuery := `
			UPDATE product_variants
			SET stock = $3,
				status = $4,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at`

		err = tx.QueryRow(ctx, updateQuery, id, v.Version, v.Stock, v.Status).Scan(&v.Version, &v.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, model.ErrOptimisticLockFailed
			}
			return nil, fmt.Errorf("failed to update stock: %w", err)
		}

		movementQuery := `
			INSERT INTO stock_movements (variant_id, movement_type, quantity, stock_before, stock_after)
			VALUES ($1, $2, $3, $4, $5)`

		if _, err := tx.Exec(ctx, movementQuery, id, movementType, abs(delta), before, v.Stock); err != nil {
			return nil, fmt.Errorf("failed to log stock movement: %w", err)
		}

		return v, nil
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
