// Package config loads coordinator configuration: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the environment variable pointing at a YAML config file.
const ConfigPathEnv = "DEVOS_CONFIG"

// Config holds all configuration for the coordinator.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Design    DesignConfig    `yaml:"design"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	Version     string   `yaml:"version"`
	RunnerID    string   `yaml:"runner_id"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// DataDir enables memory-store snapshots when non-empty.
	DataDir string `yaml:"data_dir"`
}

// WebSocketConfig tunes the push channel.
type WebSocketConfig struct {
	SendTimeout    time.Duration `yaml:"-"`
	PingInterval   time.Duration `yaml:"-"`
	PongWait       time.Duration `yaml:"-"`
	MaxMessageSize int64         `yaml:"max_message_size"`

	// AllowedOrigins gates browser handshakes on /ws, separately from the
	// REST CORS list. "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Raw string values for YAML unmarshaling
	SendTimeoutRaw  string `yaml:"send_timeout"`
	PingIntervalRaw string `yaml:"ping_interval"`
	PongWaitRaw     string `yaml:"pong_wait"`
}

// DesignConfig bounds how long design requests are kept.
type DesignConfig struct {
	PendingTTL    time.Duration `yaml:"-"`
	CompletedTTL  time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	PendingTTLRaw    string `yaml:"pending_ttl"`
	CompletedTTLRaw  string `yaml:"completed_ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type LoggingConfig struct {
	// Level is a zerolog level name.
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        3001,
			Version:     "0.1.0",
			RunnerID:    "local",
			CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   "data/devos.db",
		},
		WebSocket: WebSocketConfig{
			SendTimeout:    5 * time.Second,
			PingInterval:   54 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 512,
			AllowedOrigins: []string{"*"},
		},
		Design: DesignConfig{
			PendingTTL:    24 * time.Hour,
			CompletedTTL:  time.Hour,
			SweepInterval: time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "devos-coordinator",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// DEVOS_CONFIG (if set) and environment overrides, then validates it.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigPathEnv))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Expand environment variables in the raw YAML content
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := parseDurations(cfg); err != nil {
			return nil, fmt.Errorf("parsing durations: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", c.Store.Driver)
	}
	if c.WebSocket.SendTimeout <= 0 {
		return fmt.Errorf("websocket.send_timeout must be positive")
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.ping_interval and websocket.pong_wait must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket.ping_interval (%s) must be less than pong_wait (%s)",
			c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	if c.Design.SweepInterval <= 0 {
		return fmt.Errorf("design.sweep_interval must be positive")
	}
	if c.Design.PendingTTL < 0 || c.Design.CompletedTTL < 0 {
		return fmt.Errorf("design TTLs must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"websocket.send_timeout", cfg.WebSocket.SendTimeoutRaw, &cfg.WebSocket.SendTimeout},
		{"websocket.ping_interval", cfg.WebSocket.PingIntervalRaw, &cfg.WebSocket.PingInterval},
		{"websocket.pong_wait", cfg.WebSocket.PongWaitRaw, &cfg.WebSocket.PongWait},
		{"design.pending_ttl", cfg.Design.PendingTTLRaw, &cfg.Design.PendingTTL},
		{"design.completed_ttl", cfg.Design.CompletedTTLRaw, &cfg.Design.CompletedTTL},
		{"design.sweep_interval", cfg.Design.SweepIntervalRaw, &cfg.Design.SweepInterval},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) error {
	cfg.Server.Port = envInt("DEVOS_PORT", cfg.Server.Port)
	cfg.Server.Version = envStr("DEVOS_VERSION", cfg.Server.Version)
	cfg.Server.RunnerID = envStr("DEVOS_RUNNER_ID", cfg.Server.RunnerID)
	if v := os.Getenv("DEVOS_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	cfg.Store.Driver = envStr("DEVOS_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = envStr("DEVOS_SQLITE_PATH", cfg.Store.Path)
	cfg.Store.DataDir = envStr("DEVOS_DATA_DIR", cfg.Store.DataDir)

	if v := os.Getenv("DEVOS_WS_ALLOWED_ORIGINS"); v != "" {
		cfg.WebSocket.AllowedOrigins = splitList(v)
	}
	cfg.WebSocket.MaxMessageSize = int64(envInt("DEVOS_WS_MAX_MESSAGE_SIZE", int(cfg.WebSocket.MaxMessageSize)))

	cfg.Telemetry.Enabled = envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)

	cfg.Logging.Level = envStr("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envStr("LOG_FORMAT", cfg.Logging.Format)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DEVOS_WS_SEND_TIMEOUT", &cfg.WebSocket.SendTimeout},
		{"DEVOS_WS_PING_INTERVAL", &cfg.WebSocket.PingInterval},
		{"DEVOS_WS_PONG_WAIT", &cfg.WebSocket.PongWait},
		{"DEVOS_DESIGN_PENDING_TTL", &cfg.Design.PendingTTL},
		{"DEVOS_DESIGN_COMPLETED_TTL", &cfg.Design.CompletedTTL},
		{"DEVOS_DESIGN_SWEEP_INTERVAL", &cfg.Design.SweepInterval},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, *d.dst)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
