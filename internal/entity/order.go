package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// OrderRow is the wire shape of one order as stored in the relational
// database. Nullable money fields stay pointers here; the repository maps
// them into the canonical domain record exactly once at the read boundary.
type OrderRow struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string       `bun:"id,pk"`
	Status        string       `bun:"status,notnull"`
	StatusHistory []HistoryRow `bun:"status_history,type:jsonb"`
	IsArchived    bool         `bun:"is_archived"`
	DriverID      *string      `bun:"driver_id"`
	Notes         *string      `bun:"notes"`
	CustomerName  string       `bun:"customer_name"`
	Phone         string       `bun:"phone"`
	Location      string       `bun:"location"`
	StoreName     string       `bun:"store_name"`
	PaymentMethod string       `bun:"payment_method"`
	Items         []ItemRow    `bun:"items,type:jsonb"`
	Total         *float64     `bun:"total"`
	TotalFinal    *float64     `bun:"total_final"`
	DeliveryFee   *float64     `bun:"delivery_fee"`
	CreatedAt     time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `bun:"updated_at,nullzero"`
}

// HistoryRow is one persisted status-history entry.
type HistoryRow struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemRow is one persisted order line.
type ItemRow struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}
