package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/beacon/internal/database"
	"github.com/Additional-Code/beacon/internal/entity"
	"github.com/Additional-Code/beacon/internal/order"
)

// Module provides the seeder for the one-shot seed command.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Orders seeds example orders if they are missing.
func (s *Seeder) Orders(ctx context.Context) error {
	now := time.Now().UTC()
	fee := 5.0
	totalA := 42.5
	totalB := 18.0
	finalA := totalA + fee
	finalB := totalB + fee

	samples := []entity.OrderRow{
		{
			ID:     "ord-1000",
			Status: string(order.StatusPending),
			StatusHistory: []entity.HistoryRow{
				{Status: string(order.StatusPending), Timestamp: now.Add(-10 * time.Minute)},
			},
			CustomerName:  "Amina K",
			Phone:         "+212600000001",
			Location:      "12 Rue des Oliviers",
			StoreName:     "Central Market",
			PaymentMethod: "cash",
			Items: []entity.ItemRow{
				{Name: "Margherita", Quantity: 2, Price: 15.0},
				{Name: "Lemonade", Quantity: 1, Price: 12.5},
			},
			Total:       &totalA,
			TotalFinal:  &finalA,
			DeliveryFee: &fee,
			CreatedAt:   now.Add(-10 * time.Minute),
		},
		{
			ID:     "ord-1001",
			Status: string(order.StatusDelivered),
			StatusHistory: []entity.HistoryRow{
				{Status: string(order.StatusPending), Timestamp: now.Add(-2 * time.Hour)},
				{Status: string(order.StatusDelivering), Timestamp: now.Add(-90 * time.Minute)},
				{Status: string(order.StatusDelivered), Timestamp: now.Add(-time.Hour)},
			},
			IsArchived:    true,
			CustomerName:  "Youssef B",
			Phone:         "+212600000002",
			Location:      "8 Avenue Hassan II",
			StoreName:     "North Deli",
			PaymentMethod: "card",
			Items: []entity.ItemRow{
				{Name: "Falafel Wrap", Quantity: 1, Price: 18.0},
			},
			Total:       &totalB,
			TotalFinal:  &finalB,
			DeliveryFee: &fee,
			CreatedAt:   now.Add(-2 * time.Hour),
		},
	}

	for _, sample := range samples {
		row := sample
		_, err := s.db.NewInsert().Model(&row).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	}
	return nil
}
