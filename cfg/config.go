package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// StoreType selects the publish-list persistence driver
type StoreType string

const (
	StoreSQLite StoreType = "sqlite" // SQLite file (default)
	StorePebble StoreType = "pebble" // Pebble key-value store
	StoreMemory StoreType = "memory" // In-process maps, lost on restart
)

// StoreConfiguration controls where publish lists are persisted
type StoreConfiguration struct {
	Type          StoreType `toml:"type"`
	Path          string    `toml:"path"` // Relative paths resolve against data_dir
	BusyTimeoutMS int       `toml:"busy_timeout_ms"`
	CacheSize     int       `toml:"cache_size"` // Cached per-user listings (sqlite only)
}

// EventLogConfiguration controls the append-only event log
type EventLogConfiguration struct {
	Path string `toml:"path"` // Relative paths resolve against data_dir
}

// ConverterConfiguration controls the convergence worker
type ConverterConfiguration struct {
	Name             string   `toml:"name"`   // Cursor name in the event log
	Policy           string   `toml:"policy"` // "all_users" or "current_user"
	BatchSize        int      `toml:"batch_size"`
	PollIntervalMS   int      `toml:"poll_interval_ms"`
	RetryInitialMS   int      `toml:"retry_initial_ms"`
	RetryMaxMS       int      `toml:"retry_max_ms"`
	RetryMultiplier  float64  `toml:"retry_multiplier"`
	MaxRetries       int      `toml:"max_retries"`
	IncludeResources []string `toml:"include_resources"` // Glob patterns, empty = all
	ExcludeResources []string `toml:"exclude_resources"`
}

// SinkConfiguration describes one destination for publish-list change messages
type SinkConfiguration struct {
	Name        string   `toml:"name"`
	Type        string   `toml:"type"` // "kafka" or "nats"
	TopicPrefix string   `toml:"topic_prefix"`
	Brokers     []string `toml:"brokers"`  // kafka
	NatsURL     string   `toml:"nats_url"` // nats
	BatchSize   int      `toml:"batch_size"`
}

// AdminConfiguration controls the admin HTTP API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Store      StoreConfiguration      `toml:"store"`
	EventLog   EventLogConfiguration   `toml:"event_log"`
	Converter  ConverterConfiguration  `toml:"converter"`
	Sinks      []SinkConfiguration     `toml:"sinks"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
)

// Default configuration
var Config = Default()

// Default returns a configuration populated with defaults
func Default() *Configuration {
	return &Configuration{
		NodeID:  0, // Auto-generate
		DataDir: "./publist-data",

		Store: StoreConfiguration{
			Type:          StoreSQLite,
			Path:          "publish_list.db",
			BusyTimeoutMS: 5000,
			CacheSize:     1024,
		},

		EventLog: EventLogConfiguration{
			Path: "event_log",
		},

		Converter: ConverterConfiguration{
			Name:            "publishlist",
			Policy:          "all_users",
			BatchSize:       500,
			PollIntervalMS:  100,
			RetryInitialMS:  100,
			RetryMaxMS:      30000,
			RetryMultiplier: 2.0,
			MaxRetries:      100,
		},

		Sinks: []SinkConfiguration{},

		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "0.0.0.0",
			Port:        8090,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("publist")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	switch Config.Store.Type {
	case StoreSQLite, StorePebble:
		if Config.Store.Path == "" {
			return fmt.Errorf("store path is required for %s store", Config.Store.Type)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store type: %q", Config.Store.Type)
	}

	if Config.Store.BusyTimeoutMS < 0 {
		return fmt.Errorf("store busy timeout must be >= 0")
	}

	if Config.EventLog.Path == "" {
		return fmt.Errorf("event log path is required")
	}

	if Config.Converter.Name == "" {
		return fmt.Errorf("converter name is required")
	}

	switch Config.Converter.Policy {
	case "", "all_users", "current_user":
	default:
		return fmt.Errorf("invalid converter policy: %q", Config.Converter.Policy)
	}

	if Config.Converter.BatchSize < 1 {
		return fmt.Errorf("converter batch size must be >= 1")
	}

	if Config.Converter.PollIntervalMS < 1 {
		return fmt.Errorf("converter poll interval must be >= 1ms")
	}

	if Config.Converter.RetryMultiplier < 1 {
		return fmt.Errorf("converter retry multiplier must be >= 1")
	}

	if Config.Converter.MaxRetries < 0 {
		return fmt.Errorf("converter max retries must be >= 0")
	}

	names := make(map[string]bool, len(Config.Sinks))
	for i, sink := range Config.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("sink #%d: name is required", i)
		}
		if names[sink.Name] {
			return fmt.Errorf("duplicate sink name: %s", sink.Name)
		}
		names[sink.Name] = true

		switch sink.Type {
		case "kafka":
			if len(sink.Brokers) == 0 {
				return fmt.Errorf("sink %s: kafka requires brokers", sink.Name)
			}
		case "nats":
			if sink.NatsURL == "" {
				return fmt.Errorf("sink %s: nats requires nats_url", sink.Name)
			}
		default:
			return fmt.Errorf("sink %s: invalid type %q", sink.Name, sink.Type)
		}
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	switch Config.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %q", Config.Logging.Format)
	}

	return nil
}

// IsAdminAuthEnabled reports whether admin requests must carry the secret
func IsAdminAuthEnabled() bool {
	return Config.Admin.Secret != ""
}

// GetAdminSecret returns the configured admin secret
func GetAdminSecret() string {
	return Config.Admin.Secret
}
