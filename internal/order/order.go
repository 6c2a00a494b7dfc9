package order

import "time"

// HistoryEntry records one status change. Entries are append-only; the last
// entry always mirrors the order's current status.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Item is one line of the order's immutable business payload.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the canonical in-memory record for one customer transaction.
// Callers must treat instances as immutable snapshots: every mutation path
// goes through Transition or produces a fresh copy via Clone.
type Order struct {
	ID               string         `json:"id"`
	Status           Status         `json:"status"`
	StatusHistory    []HistoryEntry `json:"status_history"`
	IsArchived       bool           `json:"is_archived"`
	AssignedDriverID string         `json:"assigned_driver_id,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	CustomerName     string         `json:"customer_name"`
	Phone            string         `json:"phone"`
	Location         string         `json:"location"`
	StoreName        string         `json:"store_name"`
	PaymentMethod    string         `json:"payment_method"`
	Items            []Item         `json:"items"`
	Total            float64        `json:"total"`
	DeliveryFee      float64        `json:"delivery_fee"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Clone returns a deep copy so a caller can hold a snapshot that later
// mutations of the original cannot reach.
func (o Order) Clone() Order {
	dup := o
	if o.StatusHistory != nil {
		dup.StatusHistory = make([]HistoryEntry, len(o.StatusHistory))
		copy(dup.StatusHistory, o.StatusHistory)
	}
	if o.Items != nil {
		dup.Items = make([]Item, len(o.Items))
		copy(dup.Items, o.Items)
	}
	return dup
}

// Transition returns a copy of o moved to newStatus at the given instant.
// The history of the input is never mutated in place; the result carries a
// freshly allocated history with the new entry appended. Reaching a terminal
// status sets IsArchived; any other status leaves the flag as it was, so a
// manual archive survives later non-terminal transitions.
//
// Any status is reachable from any other. The source system imposes no
// transition graph and that looseness is preserved here.
func Transition(o Order, newStatus Status, at time.Time) Order {
	next := o.Clone()
	next.Status = newStatus
	next.StatusHistory = append(next.StatusHistory, HistoryEntry{
		Status:    newStatus,
		Timestamp: at,
	})
	if newStatus.Terminal() {
		next.IsArchived = true
	}
	return next
}

// New builds a freshly placed order with its initial history entry.
func New(id string, at time.Time) Order {
	return Order{
		ID:     id,
		Status: StatusPending,
		StatusHistory: []HistoryEntry{
			{Status: StatusPending, Timestamp: at},
		},
		CreatedAt: at,
	}
}
