// Package notificationbridge assembles the push transport consumer, the
// delivery pipeline and the application-facing HTTP surface into one service.
package notificationbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-bridge/internal/api"
	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/notificationbridge/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.InboundPush]
	logger          *slog.Logger
}

// New assembles the service. The bridge and the state reporter are built by
// the caller so the same instances can be shared with other components.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	bridge *pipeline.Bridge,
	state api.StateReporter,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(bridge, logger)

	// 3. Pipeline. One worker keeps deliveries in arrival order.
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: 1},
		consumer,
		pipeline.InboundPushTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	bridgeAPI := api.NewBridgeAPI(bridge, state, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(h)))
	}

	// OPTIONS
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	// Application lifecycle
	handle("POST /api/v1/ready", bridgeAPI.Ready)
	handle("POST /api/v1/app/state", bridgeAPI.AppState)
	handle("POST /api/v1/token", bridgeAPI.RegisterToken)
	handle("GET /api/v1/constants", bridgeAPI.Constants)

	// Notifications
	handle("GET /api/v1/notifications/delivered", bridgeAPI.Delivered)
	handle("POST /api/v1/notifications/open", bridgeAPI.Open)
	handle("POST /api/v1/notifications/dismiss", bridgeAPI.Dismiss)
	handle("PUT /api/v1/notifications/actions", bridgeAPI.RegisterActions)
	handle("POST /api/v1/notifications/actions/{action}", bridgeAPI.HandleAction)
	handle("POST /api/v1/notifications/replay", bridgeAPI.Replay)

	// Platform
	handle("POST /api/v1/channels", bridgeAPI.RegisterChannels)
	handle("POST /api/v1/badge", bridgeAPI.SetBadge)
	handle("POST /api/v1/format", bridgeAPI.FormatPayload)

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
