package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
)

// Event log backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

// Presenter platforms.
const (
	PresenterFCM  = "fcm"
	PresenterAPNs = "apns"
	PresenterWeb  = "web"
	PresenterLog  = "log"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type APNsConfig struct {
	KeyID        string
	TeamID       string
	BundleID     string
	P8KeyContent string
	Sandbox      bool
}

// AppConfig is the host application metadata used to resolve notification
// defaults.
type AppConfig struct {
	PackageName      string
	DisplayName      string
	DefaultChannelID string
	DefaultSmallIcon string
	DefaultColor     string
	LargeIcon        string
}

// Metadata resolves the application defaults handed to the notification parser.
func (a AppConfig) Metadata() (notification.AppMetadata, error) {
	meta := notification.AppMetadata{
		PackageName:      a.PackageName,
		DisplayName:      a.DisplayName,
		DefaultChannelID: a.DefaultChannelID,
		DefaultSmallIcon: a.DefaultSmallIcon,
		LargeIcon:        a.LargeIcon,
	}
	if a.DefaultColor != "" {
		c, err := notification.ParseColor(a.DefaultColor)
		if err != nil {
			return notification.AppMetadata{}, fmt.Errorf("invalid app.default_color: %w", err)
		}
		meta.DefaultColor = &c
	}
	return meta, nil
}

type EventLogConfig struct {
	Backend        string
	SQLitePath     string
	FirestoreRoot  string
	RedisKeyPrefix string
	// CacheRedis puts the Redis read-through cache in front of a sqlite or
	// firestore backend.
	CacheRedis bool
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	EventsTopicID          string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	APNs       APNsConfig
	App        AppConfig
	EventLog   EventLogConfig

	Presenter string
	// Actions maps a notification action name to the target it opens.
	Actions map[string]string

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("EVENTS_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "EVENTS_TOPIC_ID", "source", "env")
		cfg.EventsTopicID = val
	}

	// Event log overrides
	if val := os.Getenv("EVENTLOG_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "EVENTLOG_BACKEND", "source", "env")
		cfg.EventLog.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("SQLITE_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "SQLITE_PATH", "source", "env")
		cfg.EventLog.SQLitePath = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// App metadata
	if val := os.Getenv("APP_PACKAGE_NAME"); val != "" {
		logger.Debug("Overriding config value", "key", "APP_PACKAGE_NAME", "source", "env")
		cfg.App.PackageName = val
	}
	if val := os.Getenv("APP_DISPLAY_NAME"); val != "" {
		logger.Debug("Overriding config value", "key", "APP_DISPLAY_NAME", "source", "env")
		cfg.App.DisplayName = val
	}

	// Presenter
	if val := os.Getenv("PRESENTER"); val != "" {
		logger.Debug("Overriding config value", "key", "PRESENTER", "source", "env")
		cfg.Presenter = strings.ToLower(val)
	}
	if val := os.Getenv("FCM_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil && enabled {
			logger.Debug("Overriding config value", "key", "FCM_ENABLED", "source", "env")
			cfg.Presenter = PresenterFCM
		}
	}

	// VAPID Overrides
	if val := os.Getenv("VAPID_PUBLIC_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PUBLIC_KEY", "source", "env")
		cfg.Vapid.PublicKey = val
	}
	if val := os.Getenv("VAPID_PRIVATE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PRIVATE_KEY", "source", "env")
		cfg.Vapid.PrivateKey = val
	}
	if val := os.Getenv("VAPID_SUB_EMAIL"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_SUB_EMAIL", "source", "env")
		cfg.Vapid.SubscriberEmail = val
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_KEY_ID", "source", "env")
		cfg.APNs.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_TEAM_ID", "source", "env")
		cfg.APNs.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_BUNDLE_ID", "source", "env")
		cfg.APNs.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_P8_KEY", "source", "env")
		cfg.APNs.P8KeyContent = val
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		if sandbox, err := strconv.ParseBool(val); err == nil {
			cfg.APNs.Sandbox = sandbox
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.EventsTopicID == "" {
		return nil, fmt.Errorf("events_topic_id is required (set via YAML or EVENTS_TOPIC_ID env var)")
	}
	if cfg.App.PackageName == "" {
		return nil, fmt.Errorf("app.package_name is required (set via YAML or APP_PACKAGE_NAME env var)")
	}
	if _, err := cfg.App.Metadata(); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	// Deliveries for one device are strictly ordered.
	if cfg.NumPipelineWorkers != 1 {
		if cfg.NumPipelineWorkers > 1 {
			logger.Warn("Pipeline workers forced to 1", "configured", cfg.NumPipelineWorkers)
		}
		cfg.NumPipelineWorkers = 1
	}

	switch cfg.EventLog.Backend {
	case "":
		cfg.EventLog.Backend = BackendSQLite
	case BackendSQLite, BackendFirestore:
	case BackendRedis:
		if !cfg.Redis.Enabled {
			return nil, fmt.Errorf("eventlog backend %q requires redis to be enabled", BackendRedis)
		}
	default:
		return nil, fmt.Errorf("unknown eventlog backend %q", cfg.EventLog.Backend)
	}
	if cfg.EventLog.Backend == BackendSQLite && cfg.EventLog.SQLitePath == "" {
		cfg.EventLog.SQLitePath = "notification-bridge.db"
	}

	switch cfg.Presenter {
	case "":
		cfg.Presenter = PresenterLog
	case PresenterFCM, PresenterAPNs, PresenterWeb, PresenterLog:
	default:
		return nil, fmt.Errorf("unknown presenter %q", cfg.Presenter)
	}
	if cfg.Presenter == PresenterAPNs && (cfg.APNs.KeyID == "" || cfg.APNs.TeamID == "" || cfg.APNs.P8KeyContent == "") {
		return nil, fmt.Errorf("apns presenter requires key_id, team_id and p8 key content")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
