package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/beacon/internal/cache"
	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/database"
	"github.com/Additional-Code/beacon/internal/logger"
	"github.com/Additional-Code/beacon/internal/messaging"
	"github.com/Additional-Code/beacon/internal/observability"
	repositoryorder "github.com/Additional-Code/beacon/internal/repository/order"
	grpcserver "github.com/Additional-Code/beacon/internal/server/grpc"
	httpserver "github.com/Additional-Code/beacon/internal/server/http"
	syncengine "github.com/Additional-Code/beacon/internal/sync"
	transporthttp "github.com/Additional-Code/beacon/internal/transport/http"
	"github.com/Additional-Code/beacon/internal/worker"
	workerchangefeed "github.com/Additional-Code/beacon/internal/worker/changefeed"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	syncengine.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// Worker consumes the store's change feed and keeps the order set in sync.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerchangefeed.Module,
)

// Module is the default application wiring: the HTTP surface, the gRPC
// readiness probe, and the change-feed consumer, so one process serves views
// and stays in sync.
var Module = fx.Options(
	HTTP,
	grpcserver.Module,
	worker.Module,
	workerchangefeed.Module,
)
