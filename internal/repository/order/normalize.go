package order

import (
	"github.com/Additional-Code/beacon/internal/entity"
	"github.com/Additional-Code/beacon/internal/order"
)

// toDomain is the only place the wire shape becomes a canonical record.
// Nullable fields resolve here: a missing delivery fee takes the configured
// default, and a missing total is derived from total_final minus the fee.
func (r *Repository) toDomain(row *entity.OrderRow) order.Order {
	fee := r.defaultFee
	if row.DeliveryFee != nil {
		fee = *row.DeliveryFee
	}

	var total float64
	switch {
	case row.Total != nil:
		total = *row.Total
	case row.TotalFinal != nil:
		total = *row.TotalFinal - fee
	}

	o := order.Order{
		ID:            row.ID,
		Status:        order.Status(row.Status),
		IsArchived:    row.IsArchived,
		CustomerName:  row.CustomerName,
		Phone:         row.Phone,
		Location:      row.Location,
		StoreName:     row.StoreName,
		PaymentMethod: row.PaymentMethod,
		Total:         total,
		DeliveryFee:   fee,
		CreatedAt:     row.CreatedAt,
	}
	if row.DriverID != nil {
		o.AssignedDriverID = *row.DriverID
	}
	if row.Notes != nil {
		o.Notes = *row.Notes
	}

	if len(row.StatusHistory) > 0 {
		o.StatusHistory = make([]order.HistoryEntry, 0, len(row.StatusHistory))
		for _, h := range row.StatusHistory {
			o.StatusHistory = append(o.StatusHistory, order.HistoryEntry{
				Status:    order.Status(h.Status),
				Timestamp: h.Timestamp,
			})
		}
	} else {
		// Legacy rows predate the history column; synthesize the single
		// entry the invariant requires.
		o.StatusHistory = []order.HistoryEntry{
			{Status: o.Status, Timestamp: row.CreatedAt},
		}
	}

	if len(row.Items) > 0 {
		o.Items = make([]order.Item, 0, len(row.Items))
		for _, it := range row.Items {
			o.Items = append(o.Items, order.Item{
				Name:     it.Name,
				Quantity: it.Quantity,
				Price:    it.Price,
			})
		}
	}

	return o
}

func fromDomain(o order.Order) *entity.OrderRow {
	row := &entity.OrderRow{
		ID:            o.ID,
		Status:        string(o.Status),
		IsArchived:    o.IsArchived,
		CustomerName:  o.CustomerName,
		Phone:         o.Phone,
		Location:      o.Location,
		StoreName:     o.StoreName,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}

	total := o.Total
	fee := o.DeliveryFee
	totalFinal := o.Total + o.DeliveryFee
	row.Total = &total
	row.DeliveryFee = &fee
	row.TotalFinal = &totalFinal

	if o.AssignedDriverID != "" {
		driver := o.AssignedDriverID
		row.DriverID = &driver
	}
	if o.Notes != "" {
		notes := o.Notes
		row.Notes = &notes
	}

	row.StatusHistory = make([]entity.HistoryRow, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		row.StatusHistory = append(row.StatusHistory, entity.HistoryRow{
			Status:    string(h.Status),
			Timestamp: h.Timestamp,
		})
	}

	for _, it := range o.Items {
		row.Items = append(row.Items, entity.ItemRow{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}

	return row
}
