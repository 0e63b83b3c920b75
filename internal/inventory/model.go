package inventory

import (
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// Category values used by the clinic UI filters. Items may carry any other
// category or none.
const (
	CategoryMedicine = "medicine"
	CategoryVaccine  = "vaccine"
	CategorySupply   = "supply"
)

// DefaultReorderLevel applies when a new item does not set one.
const DefaultReorderLevel = 10

// Item is one stocked product.
type Item struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Unit         string           `json:"unit"`
	Quantity     int              `json:"quantity"`
	ReorderLevel int              `json:"reorder_level"`
	ExpiryDate   *civil.Date      `json:"expiry_date"`
	CostPrice    *decimal.Decimal `json:"cost_price"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StockLog records one stock change.
type StockLog struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"item_id"`
	ChangeQty   int       `json:"change_qty"`
	Reason      string    `json:"reason"`
	PerformedBy *int64    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFilter narrows GET /items.
type ListFilter struct {
	Category string
	LowStock bool
}

// CreateItemRequest is the request body for creating an item
type CreateItemRequest struct {
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Unit         string           `json:"unit"`
	Quantity     int              `json:"quantity"`
	ReorderLevel *int             `json:"reorder_level"`
	ExpiryDate   *civil.Date      `json:"expiry_date"`
	CostPrice    *decimal.Decimal `json:"cost_price"`
}

// UpdateItemRequest is the request body for a partial item update
type UpdateItemRequest struct {
	Name         *string          `json:"name"`
	Category     *string          `json:"category"`
	Unit         *string          `json:"unit"`
	Quantity     *int             `json:"quantity"`
	ReorderLevel *int             `json:"reorder_level"`
	ExpiryDate   *civil.Date      `json:"expiry_date"`
	CostPrice    *decimal.Decimal `json:"cost_price"`
}

// StockChangeRequest is the request body for a stock adjustment
type StockChangeRequest struct {
	ChangeQty int    `json:"change_qty"`
	Reason    string `json:"reason"`
}
