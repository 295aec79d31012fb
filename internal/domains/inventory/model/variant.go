package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	VariantStatusActive     = "active"
	VariantStatusOutOfStock = "out_of_stock"
)

const (
	MovementReserve = "reserve"
	MovementRelease = "release"
)

// Variant is one (product x size x color) combination with its stock counter.
// Stock is mutated only through the ledger; Status is derived from it.
type Variant struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	ProductName     string          `json:"product_name"`
	BasePrice       decimal.Decimal `json:"base_price"`
	AdditionalPrice decimal.Decimal `json:"additional_price"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	Stock           int             `json:"stock"`
	Status          string          `json:"status"`
	Version         int             `json:"version"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// UnitPrice is the base price of the parent product plus the variant surcharge.
func (v *Variant) UnitPrice() decimal.Decimal {
	return v.BasePrice.Add(v.AdditionalPrice)
}

// RecomputeStatus derives Status from Stock.
func (v *Variant) RecomputeStatus() {
	v.Status = StatusForStock(v.Stock)
}

func StatusForStock(stock int) string {
	if stock > 0 {
		return VariantStatusActive
	}
	return VariantStatusOutOfStock
}

// StockMovement is the audit row written for every ledger mutation.
type StockMovement struct {
	VariantID   uuid.UUID
	Type        string
	Quantity    int
	StockBefore int
	StockAfter  int
	CreatedAt   time.Time
}

// StockSnapshot is the cached, read-only view of a variant's stock.
type StockSnapshot struct {
	VariantID uuid.UUID `json:"variant_id"`
	Stock     int       `json:"stock"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *Variant) Snapshot() StockSnapshot {
	return StockSnapshot{
		VariantID: v.ID,
		Stock:     v.Stock,
		Status:    v.Status,
		UpdatedAt: v.UpdatedAt,
	}
}
