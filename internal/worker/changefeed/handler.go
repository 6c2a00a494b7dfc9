package changefeed

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/messaging"
	"github.com/Additional-Code/beacon/internal/sync"
	"github.com/Additional-Code/beacon/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/beacon/worker/changefeed")

// Pulser receives decoded change events. Satisfied by the sync controller.
type Pulser interface {
	HandleChange(sync.ChangeEvent)
}

// Module registers the change-feed handler.
var Module = fx.Module("worker_changefeed",
	fx.Provide(func(c *sync.Controller) Pulser { return c }),
	fx.Provide(
		fx.Annotate(
			NewChangeHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewChangeHandler routes store change notifications into the debouncer.
// Row payloads are never applied locally; the engine always refetches, so a
// decode only needs table and operation.
func NewChangeHandler(pulser Pulser, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.changefeed.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event sync.ChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode change event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		span.SetAttributes(
			attribute.String("change.table", event.Table),
			attribute.String("change.operation", string(event.Operation)),
		)
		logger.Debug("change event received",
			zap.String("table", event.Table),
			zap.String("operation", string(event.Operation)),
		)

		pulser.HandleChange(event)
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.ChangeTopic,
		Handler: handler,
	}
}
