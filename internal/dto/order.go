package dto

import "time"

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID               string               `json:"id"`
	Status           string               `json:"status"`
	StatusHistory    []StatusHistoryEntry `json:"status_history"`
	IsArchived       bool                 `json:"is_archived"`
	AssignedDriverID string               `json:"assigned_driver_id,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	CustomerName     string               `json:"customer_name"`
	Phone            string               `json:"phone"`
	Location         string               `json:"location"`
	StoreName        string               `json:"store_name"`
	PaymentMethod    string               `json:"payment_method"`
	Items            []OrderItem          `json:"items,omitempty"`
	Total            float64              `json:"total"`
	DeliveryFee      float64              `json:"delivery_fee"`
	CreatedAt        time.Time            `json:"created_at"`
}

// StatusHistoryEntry is one lifecycle step in an order response.
type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderItem is one order line in an order response.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderViewResponse is one paginated view of the order set.
type OrderViewResponse struct {
	Orders     []OrderResponse `json:"orders"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
	Total      int             `json:"total"`
}

// BulkDeleteResponse reports per-item outcomes of a bulk delete.
type BulkDeleteResponse struct {
	Requested int      `json:"requested"`
	Deleted   int      `json:"deleted"`
	Failed    []string `json:"failed,omitempty"`
}
