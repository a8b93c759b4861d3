package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Surgeflow SurgeflowConfig `yaml:"surgeflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Session   SessionConfig   `yaml:"session"`
	Venues    VenuesConfig    `yaml:"venues"`
	Windows   WindowsConfig   `yaml:"windows"`
	Engine    EngineConfig    `yaml:"engine"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Health    HealthConfig    `yaml:"health"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type SurgeflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	EventBuffer int `yaml:"event_buffer"`
}

// SessionConfig holds connection lifecycle tunables shared by all venues.
type SessionConfig struct {
	MaxStreamsPerConn    int   `yaml:"max_streams_per_conn"`
	ReconnectBaseDelayMs int64 `yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs  int64 `yaml:"reconnect_max_delay_ms"`
	MaxReconnectAttempts int   `yaml:"max_reconnect_attempts"`
	HeartbeatIntervalMs  int64 `yaml:"heartbeat_interval_ms"`
	SubscribesPerSecond  int   `yaml:"subscribes_per_second"`
}

type VenuesConfig struct {
	Binance VenueConfig `yaml:"binance"`
	Bybit   VenueConfig `yaml:"bybit"`
}

type VenueConfig struct {
	Enabled bool   `yaml:"enabled"`
	WSURL   string `yaml:"ws_url"`
	RestURL string `yaml:"rest_url"`
	// Symbols is the static fallback universe used when the REST
	// instrument fetch fails.
	Symbols []string `yaml:"symbols"`
}

type WindowsConfig struct {
	Price  WindowConfig `yaml:"price"`
	Volume WindowConfig `yaml:"volume"`
}

type WindowConfig struct {
	BucketSizeMs int64 `yaml:"bucket_size_ms"`
	BucketCount  int   `yaml:"bucket_count"`
}

type EngineConfig struct {
	MetricsIntervalMs     int64 `yaml:"metrics_interval_ms"`
	LeaderboardIntervalMs int64 `yaml:"leaderboard_interval_ms"`
	AggregationIntervalMs int64 `yaml:"aggregation_interval_ms"`
	TopN                  int   `yaml:"top_n"`
}

type BroadcastConfig struct {
	Address          string `yaml:"address"`
	FlushIntervalMs  int64  `yaml:"flush_interval_ms"`
	LivenessCheckMs  int64  `yaml:"liveness_check_ms"`
	WriteBufferBytes int    `yaml:"write_buffer_bytes"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	data = []byte(expandEnv(string(data)))

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			RawBuffer:   4096,
			EventBuffer: 256,
		},
		Session: SessionConfig{
			MaxStreamsPerConn:    50,
			ReconnectBaseDelayMs: 1000,
			ReconnectMaxDelayMs:  30000,
			MaxReconnectAttempts: 10,
			HeartbeatIntervalMs:  20000,
			SubscribesPerSecond:  5,
		},
		Windows: WindowsConfig{
			Price:  WindowConfig{BucketSizeMs: 1000, BucketCount: 3600},
			Volume: WindowConfig{BucketSizeMs: 1000, BucketCount: 3600},
		},
		Engine: EngineConfig{
			MetricsIntervalMs:     250,
			LeaderboardIntervalMs: 100,
			AggregationIntervalMs: 5000,
			TopN:                  10,
		},
		Broadcast: BroadcastConfig{
			Address:         ":8080",
			FlushIntervalMs: 100,
			LivenessCheckMs: 30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Surgeflow.Name == "" {
		return fmt.Errorf("surgeflow.name is required")
	}
	if cfg.Surgeflow.Version == "" {
		return fmt.Errorf("surgeflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if cfg.Session.MaxStreamsPerConn <= 0 {
		return fmt.Errorf("session.max_streams_per_conn must be greater than 0")
	}
	if cfg.Session.ReconnectBaseDelayMs <= 0 {
		return fmt.Errorf("session.reconnect_base_delay_ms must be greater than 0")
	}
	if cfg.Session.ReconnectMaxDelayMs < cfg.Session.ReconnectBaseDelayMs {
		return fmt.Errorf("session.reconnect_max_delay_ms must be >= base delay")
	}
	if cfg.Session.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("session.max_reconnect_attempts must be greater than 0")
	}

	for name, w := range map[string]WindowConfig{
		"windows.price":  cfg.Windows.Price,
		"windows.volume": cfg.Windows.Volume,
	} {
		if w.BucketSizeMs <= 0 {
			return fmt.Errorf("%s.bucket_size_ms must be greater than 0", name)
		}
		if w.BucketCount <= 0 {
			return fmt.Errorf("%s.bucket_count must be greater than 0", name)
		}
	}

	if cfg.Engine.MetricsIntervalMs <= 0 {
		return fmt.Errorf("engine.metrics_interval_ms must be greater than 0")
	}
	if cfg.Engine.LeaderboardIntervalMs <= 0 {
		return fmt.Errorf("engine.leaderboard_interval_ms must be greater than 0")
	}
	if cfg.Engine.AggregationIntervalMs <= 0 {
		return fmt.Errorf("engine.aggregation_interval_ms must be greater than 0")
	}

	if cfg.Broadcast.FlushIntervalMs <= 0 {
		return fmt.Errorf("broadcast.flush_interval_ms must be greater than 0")
	}
	if cfg.Broadcast.LivenessCheckMs <= 0 {
		return fmt.Errorf("broadcast.liveness_check_ms must be greater than 0")
	}

	if !cfg.Venues.Binance.Enabled && !cfg.Venues.Bybit.Enabled {
		return fmt.Errorf("at least one venue must be enabled")
	}
	if cfg.Venues.Binance.Enabled && cfg.Venues.Binance.WSURL == "" {
		return fmt.Errorf("venues.binance.ws_url is required when enabled")
	}
	if cfg.Venues.Bybit.Enabled && cfg.Venues.Bybit.WSURL == "" {
		return fmt.Errorf("venues.bybit.ws_url is required when enabled")
	}

	return nil
}

// expandEnv substitutes ${VAR} references in the raw config text with the
// value of the corresponding environment variable. Unset variables expand to
// an empty string.
func expandEnv(raw string) string {
	return os.Expand(raw, func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	})
}
