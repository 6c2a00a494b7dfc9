package order

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/database"
	"github.com/Additional-Code/beacon/internal/entity"
	"github.com/Additional-Code/beacon/internal/order"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/beacon/repository/order")

// Repository implements the persistent-store boundary of the sync engine:
// one capped read, minimal partial updates keyed by id, and a hard delete.
type Repository struct {
	writer     *bun.DB
	reader     *bun.DB
	fetchLimit int
	defaultFee float64
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections, cfg config.Config) *Repository {
	return &Repository{
		writer:     conns.Writer,
		reader:     conns.Reader,
		fetchLimit: cfg.Sync.FetchLimit,
		defaultFee: cfg.Sync.DefaultDeliveryFee,
	}
}

// FetchOrders loads the most recent orders, newest first, capped at the
// configured limit. Rows are normalized into canonical records here and
// nowhere else.
func (r *Repository) FetchOrders(ctx context.Context) ([]order.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FetchOrders")
	defer span.End()

	var rows []entity.OrderRow
	err := r.reader.NewSelect().
		Model(&rows).
		Order("created_at DESC").
		Limit(r.fetchLimit).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	orders := make([]order.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, r.toDomain(&rows[i]))
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// UpdateStatus persists a status transition: status, full history, and the
// archive flag in one partial update.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status order.Status, history []order.HistoryEntry, archived bool) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	historyRows := make([]entity.HistoryRow, 0, len(history))
	for _, h := range history {
		historyRows = append(historyRows, entity.HistoryRow{
			Status:    string(h.Status),
			Timestamp: h.Timestamp,
		})
	}

	_, err := r.writer.NewUpdate().
		Model((*entity.OrderRow)(nil)).
		Set("status = ?", string(status)).
		Set("status_history = ?", historyRows).
		Set("is_archived = ?", archived).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateDriver sets or clears the assigned driver. Empty clears.
func (r *Repository) UpdateDriver(ctx context.Context, id, driverID string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateDriver", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	var value *string
	if driverID != "" {
		value = &driverID
	}

	_, err := r.writer.NewUpdate().
		Model((*entity.OrderRow)(nil)).
		Set("driver_id = ?", value).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateArchived flips the archive flag only.
func (r *Repository) UpdateArchived(ctx context.Context, id string, archived bool) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateArchived", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	_, err := r.writer.NewUpdate().
		Model((*entity.OrderRow)(nil)).
		Set("is_archived = ?", archived).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateNotes replaces the free-text notes field.
func (r *Repository) UpdateNotes(ctx context.Context, id, notes string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateNotes", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	_, err := r.writer.NewUpdate().
		Model((*entity.OrderRow)(nil)).
		Set("notes = ?", notes).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// Delete removes the row permanently. Archival is a flag, never a delete, so
// there is no soft-delete path at this layer.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	_, err := r.writer.NewDelete().
		Model((*entity.OrderRow)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// Insert persists a new order row. Used by the seeder; the customer-facing
// placement flow writes through the same path.
func (r *Repository) Insert(ctx context.Context, o order.Order) error {
	if o.ID == "" {
		return errors.New("order id is required")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Insert", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	row := fromDomain(o)
	_, err := r.writer.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}
