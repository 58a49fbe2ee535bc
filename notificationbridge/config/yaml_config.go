package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlAPNsConfig struct {
	KeyID        string `yaml:"key_id"`
	TeamID       string `yaml:"team_id"`
	BundleID     string `yaml:"bundle_id"`
	P8KeyContent string `yaml:"p8_key"`
	Sandbox      bool   `yaml:"sandbox"`
}

type YamlAppConfig struct {
	PackageName      string `yaml:"package_name"`
	DisplayName      string `yaml:"display_name"`
	DefaultChannelID string `yaml:"default_channel_id"`
	DefaultSmallIcon string `yaml:"default_small_icon"`
	DefaultColor     string `yaml:"default_color"`
	LargeIcon        string `yaml:"large_icon"`
}

type YamlEventLogConfig struct {
	Backend        string `yaml:"backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	FirestoreRoot  string `yaml:"firestore_root"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	CacheRedis     bool   `yaml:"cache_redis"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string             `yaml:"project_id"`
	ListenAddr             string             `yaml:"listen_addr"`
	TopicID                string             `yaml:"topic_id"`
	SubscriptionID         string             `yaml:"subscription_id"`
	SubscriptionDLQTopicID string             `yaml:"subscription_dlq_topic_id"`
	EventsTopicID          string             `yaml:"events_topic_id"`
	CorsConfig             YamlCorsConfig     `yaml:"cors"`
	RedisConfig            YamlRedisConfig    `yaml:"redis"`
	VapidConfig            YamlVapidConfig    `yaml:"vapid"`
	APNsConfig             YamlAPNsConfig     `yaml:"apns"`
	AppConfig              YamlAppConfig      `yaml:"app"`
	EventLogConfig         YamlEventLogConfig `yaml:"eventlog"`
	Presenter              string             `yaml:"presenter"`
	Actions                map[string]string  `yaml:"actions"`
	NumPipelineWorkers     int                `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	actions := make(map[string]string, len(baseCfg.Actions))
	for action, target := range baseCfg.Actions {
		actions[action] = target
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		EventsTopicID:  baseCfg.EventsTopicID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		APNs: APNsConfig{
			KeyID:        baseCfg.APNsConfig.KeyID,
			TeamID:       baseCfg.APNsConfig.TeamID,
			BundleID:     baseCfg.APNsConfig.BundleID,
			P8KeyContent: baseCfg.APNsConfig.P8KeyContent,
			Sandbox:      baseCfg.APNsConfig.Sandbox,
		},
		App: AppConfig{
			PackageName:      baseCfg.AppConfig.PackageName,
			DisplayName:      baseCfg.AppConfig.DisplayName,
			DefaultChannelID: baseCfg.AppConfig.DefaultChannelID,
			DefaultSmallIcon: baseCfg.AppConfig.DefaultSmallIcon,
			DefaultColor:     baseCfg.AppConfig.DefaultColor,
			LargeIcon:        baseCfg.AppConfig.LargeIcon,
		},
		EventLog: EventLogConfig{
			Backend:        baseCfg.EventLogConfig.Backend,
			SQLitePath:     baseCfg.EventLogConfig.SQLitePath,
			FirestoreRoot:  baseCfg.EventLogConfig.FirestoreRoot,
			RedisKeyPrefix: baseCfg.EventLogConfig.RedisKeyPrefix,
			CacheRedis:     baseCfg.EventLogConfig.CacheRedis,
		},
		Presenter:              baseCfg.Presenter,
		Actions:                actions,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"presenter", cfg.Presenter,
		"eventlog_backend", cfg.EventLog.Backend,
	)

	return cfg, nil
}
