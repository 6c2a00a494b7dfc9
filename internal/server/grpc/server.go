package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/sync"
)

// Module exposes the gRPC readiness endpoint and its lifecycle hooks.
var Module = fx.Module("grpc_server",
	fx.Provide(NewServer),
	fx.Invoke(Run),
)

// NewServer builds a gRPC server carrying the standard health service. The
// only thing served over gRPC is readiness: load balancers and sidecars probe
// it while the HTTP surface carries the actual API.
func NewServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	unary := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Warn("grpc unary call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration), zap.Error(err))
		} else {
			logger.Debug("grpc unary call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration))
		}
		return resp, err
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(unary))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// Run binds the server and ties the health status to the order engine: the
// probe reports serving once the controller has a usable order set (fresh or
// cached) and flips to not-serving during shutdown.
func Run(lc fx.Lifecycle, cfg config.Config, server *grpc.Server, hs *health.Server, ctrl *sync.Controller, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	var listener net.Listener

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			listener = ln
			logger.Info("starting gRPC health server", zap.String("addr", addr))
			go func() {
				if err := server.Serve(listener); err != nil {
					logger.Fatal("grpc server failed", zap.Error(err))
				}
			}()
			if len(ctrl.Orders()) > 0 {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			} else {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			}
			// The first successful refetch, like every later state change,
			// notifies subscribers; from then on the probe stays green.
			ctrl.Subscribe(func() {
				hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			logger.Info("stopping gRPC server")
			stopped := make(chan struct{})
			go func() {
				server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-ctx.Done():
				server.Stop()
				return ctx.Err()
			case <-stopped:
				if listener != nil {
					_ = listener.Close()
				}
				return nil
			}
		},
	})
}
