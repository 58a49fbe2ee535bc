package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-bridge/internal/appstate"
	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/internal/platform/apns"
	"github.com/tinywideclouds/go-notification-bridge/internal/platform/events"
	"github.com/tinywideclouds/go-notification-bridge/internal/platform/fcm"
	"github.com/tinywideclouds/go-notification-bridge/internal/platform/logpresenter"
	"github.com/tinywideclouds/go-notification-bridge/internal/platform/web"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"

	"github.com/tinywideclouds/go-notification-bridge/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-notification-bridge/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-bridge/internal/storage/sqlite"

	"github.com/tinywideclouds/go-notification-bridge/notificationbridge"
	"github.com/tinywideclouds/go-notification-bridge/notificationbridge/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

// foregroundStaleAfter bounds how long a foreground report is trusted
// without a refresh.
const foregroundStaleAfter = 2 * time.Minute

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-notification-bridge")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}
	meta, err := cfg.App.Metadata()
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	// --- Event Log Store ---
	store, closers, err := newEventLogStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Event log store failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	settings := eventlog.NewSettings(store)

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT config discovery failed", "identity_url", identityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Presenter ---
	presenter, err := newPresenter(ctx, cfg, settings, logger)
	if err != nil {
		logger.Error("Presenter failed", "presenter", cfg.Presenter, "err", err)
		os.Exit(1)
	}

	// --- Application Events ---
	eventsTopic := events.PublisherTopic{Publisher: psClient.Publisher(cfg.EventsTopicID)}
	emitter := events.NewPubsubEmitter(eventsTopic, logger)

	// --- Bridge ---
	tracker := appstate.NewTracker(foregroundStaleAfter)
	actions := pipeline.NewActionRegistry(cfg.Actions)
	bridge := pipeline.NewBridge(meta, store, presenter, emitter, tracker, actions, logger)

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := notificationbridge.New(cfg, consumer, bridge, tracker, authMiddleware, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "err", err)
		}
	}()

	logger.Info("Starting service...", "presenter", cfg.Presenter, "eventlog_backend", cfg.EventLog.Backend)
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newEventLogStore builds the configured backend and, when asked, decorates
// it with the Redis read-through cache.
func newEventLogStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (eventlog.Store, []io.Closer, error) {
	var closers []io.Closer

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis client...", "addr", cfg.Redis.Addr)
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = rc
		closers = append(closers, rc)
	}

	var store eventlog.Store
	switch cfg.EventLog.Backend {
	case config.BackendSQLite:
		s, err := sqlite.NewRecordStore(cfg.EventLog.SQLitePath)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, s)
		store = s
	case config.BackendFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, closers, fmt.Errorf("firestore client failed: %w", err)
		}
		closers = append(closers, fsClient)
		store = fsStore.NewRecordStore(fsClient, cfg.EventLog.FirestoreRoot)
	case config.BackendRedis:
		// Redis is the store of record here; caching it again is pointless.
		logger.Info("Event log initialized", "type", "redis")
		return cache.NewRecordStore(redisClient, cfg.EventLog.RedisKeyPrefix), closers, nil
	default:
		return nil, closers, fmt.Errorf("unknown eventlog backend %q", cfg.EventLog.Backend)
	}
	logger.Info("Event log initialized", "type", cfg.EventLog.Backend)

	if cfg.EventLog.CacheRedis {
		if redisClient == nil {
			logger.Warn("Event log cache requested but redis is disabled")
			return store, closers, nil
		}
		store = cache.NewCachedStore(store, redisClient, 24*time.Hour, logger)
		logger.Info("Event log upgraded", "type", "redis_cached_"+cfg.EventLog.Backend)
	}
	return store, closers, nil
}

func newPresenter(ctx context.Context, cfg *config.Config, tokens dispatch.TokenSource, logger *slog.Logger) (dispatch.Presenter, error) {
	switch cfg.Presenter {
	case config.PresenterFCM:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return fcm.NewPresenter(fcmMessaging, tokens, logger), nil
	case config.PresenterAPNs:
		p, err := apns.NewPresenter(apns.Config{
			KeyID:        cfg.APNs.KeyID,
			TeamID:       cfg.APNs.TeamID,
			BundleID:     cfg.APNs.BundleID,
			P8KeyContent: cfg.APNs.P8KeyContent,
			Sandbox:      cfg.APNs.Sandbox,
		}, tokens, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.PresenterWeb:
		if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
			return nil, fmt.Errorf("web presenter requires VAPID keys")
		}
		logger.Info("Web presenter enabled", "public_key", cfg.Vapid.PublicKey)
		return web.NewPresenter(cfg.Vapid, tokens, logger), nil
	default:
		logger.Warn("No platform presenter configured, notifications are only logged")
		return logpresenter.New(logger), nil
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: durationpb.New(5 * time.Second),
			MaximumBackoff: durationpb.New(5 * time.Minute),
		},
		// One device, one ordered stream.
		EnableMessageOrdering: true,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
