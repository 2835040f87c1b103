package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the server configuration
type Config struct {
	// Database connection string (DSN). Postgres URLs and SQLite paths are
	// both accepted; see bunx.DetectDatabaseType.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Maximum database connection pool size (postgres only)
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	// Emit JSON log lines instead of console output
	LogJSON bool

	// Origins allowed to call the API and open roster sockets
	CORSOrigins []string

	// MQTT broker configuration
	MQTT MQTTConfig
}

// MQTTConfig holds the broker connection for the ingest subscriber and the
// coordinates handed to agents by the token exchange. The credentials are
// shared between both: one broker account for the whole fleet, until
// per-node rotation lands.
type MQTTConfig struct {
	// URL the server dials for ingest (tcp://host:1883 or ws://host:9001)
	URL string

	// Host and port advertised to agents via /nodes/auth/exchange
	AdvertiseHost string
	AdvertisePort int

	Username string
	Password string
}

// AgentConfig holds the agent configuration
type AgentConfig struct {
	// Node identity issued by POST /nodes/create
	NodeID    string
	NodeToken string

	// Base URL of the Statix API, e.g. http://statix.example.com:8080
	APIURL string

	// Publish cadence for metrics
	PublishInterval time.Duration

	// How often the inventory is re-collected and hash-checked
	SysInfoCheckInterval time.Duration

	// Republish inventory after this long even if the hash is unchanged
	SysInfoMaxAge time.Duration

	// How often broker credentials are re-exchanged while connected
	ExchangeInterval time.Duration

	// Pause between broker sessions (connect failure or disconnect)
	ReconnectDelay time.Duration

	// Broker connect timeout
	ConnectTimeout time.Duration

	// Enable debug logging
	Debug bool

	// Emit JSON log lines instead of console output
	LogJSON bool
}

// Load reads server configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("STATIX_DATABASE_URL", "file:statix.db"),
		ServerAddr:       getEnv("STATIX_SERVER_ADDR", "localhost:8080"),
		MaxDBConnections: getEnvInt("STATIX_MAX_DB_CONNECTIONS", 25),
		Debug:            getEnvBool("STATIX_DEBUG", false),
		LogJSON:          getEnvBool("STATIX_LOG_JSON", false),
		CORSOrigins:      getEnvList("STATIX_CORS_ORIGINS", []string{"http://localhost:5173"}),
		MQTT: MQTTConfig{
			URL:           getEnv("STATIX_MQTT_URL", "tcp://localhost:1883"),
			AdvertiseHost: getEnv("STATIX_MQTT_ADVERTISE_HOST", "localhost"),
			AdvertisePort: getEnvInt("STATIX_MQTT_ADVERTISE_PORT", 1883),
			Username:      getEnv("STATIX_MQTT_USERNAME", ""),
			Password:      getEnv("STATIX_MQTT_PASSWORD", ""),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("STATIX_DATABASE_URL is required")
	}
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("STATIX_SERVER_ADDR is required")
	}
	if cfg.MQTT.URL == "" {
		return nil, fmt.Errorf("STATIX_MQTT_URL is required")
	}

	return cfg, nil
}

// LoadAgent reads agent configuration from environment variables.
// NodeID and NodeToken are required; everything else has defaults.
// Intervals are plain millisecond integers.
func LoadAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{
		NodeID:               getEnv("STATIX_AGENT_NODE_ID", ""),
		NodeToken:            getEnv("STATIX_AGENT_NODE_TOKEN", ""),
		APIURL:               getEnv("STATIX_AGENT_API_URL", "http://localhost:8080"),
		PublishInterval:      getEnvMillis("STATIX_AGENT_PUBLISH_INTERVAL_MS", 5*time.Second),
		SysInfoCheckInterval: getEnvMillis("STATIX_AGENT_SYSINFO_CHECK_INTERVAL_MS", 10*time.Minute),
		SysInfoMaxAge:        getEnvMillis("STATIX_AGENT_SYSINFO_MAX_AGE_MS", 24*time.Hour),
		ExchangeInterval:     getEnvMillis("STATIX_AGENT_EXCHANGE_INTERVAL_MS", 15*time.Minute),
		ReconnectDelay:       getEnvMillis("STATIX_AGENT_RECONNECT_DELAY_MS", 3*time.Second),
		ConnectTimeout:       getEnvMillis("STATIX_AGENT_CONNECT_TIMEOUT_MS", 8*time.Second),
		Debug:                getEnvBool("STATIX_AGENT_DEBUG", false),
		LogJSON:              getEnvBool("STATIX_AGENT_LOG_JSON", false),
	}

	if cfg.NodeID == "" {
		return nil, fmt.Errorf("STATIX_AGENT_NODE_ID is required")
	}
	if cfg.NodeToken == "" {
		return nil, fmt.Errorf("STATIX_AGENT_NODE_TOKEN is required")
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("STATIX_AGENT_API_URL is required")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvMillis retrieves a millisecond-count environment variable as a duration
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		var result int64
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil && result > 0 {
			return time.Duration(result) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable or returns a default value
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
