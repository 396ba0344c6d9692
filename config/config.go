// Package config centralizes runtime configuration for the canvas
// collaboration server and its client sync layer.
// Priority: flags > environment variables > defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CanvasConfig is the complete configuration surface of the process.
type CanvasConfig struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	WebSocket WebSocketConfig `json:"websocket"`
	Room      RoomConfig      `json:"room"`
	Sync      SyncConfig      `json:"sync"`
	Client    ClientConfig    `json:"client"`
}

// ServerConfig holds the HTTP/WS listener settings.
type ServerConfig struct {
	Host   string `json:"host"`
	Port   string `json:"port"`
	WSPath string `json:"ws_path"`
}

// DatabaseConfig holds Postgres connection parameters.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// LoggingConfig mirrors the logging package's own config shape so
// callers can load everything from one place.
type LoggingConfig struct {
	Level        string   `json:"level"`
	TraceModules []string `json:"trace_modules"`
	LogDir       string   `json:"log_dir"`
}

// WebSocketConfig tunes the gorilla/websocket transport.
type WebSocketConfig struct {
	WriteTimeout    time.Duration `json:"write_timeout"`
	PongTimeout     time.Duration `json:"pong_timeout"`
	PingPeriod      time.Duration `json:"ping_period"`
	MaxMessageSize  int64         `json:"max_message_size"`
	ReadBufferSize  int           `json:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size"`
	SendBufferSize  int           `json:"send_buffer_size"`
}

// RoomConfig tunes the in-memory room manager / fan-out.
type RoomConfig struct {
	LivenessInterval time.Duration `json:"liveness_interval"`
	JoinTimeout      time.Duration `json:"join_timeout"`
}

// SyncConfig holds the server-side sync settings. Only ConflictWindow
// is read outside this package (main passes it to the store);
// AckTimeout and BatchTimeout are loaded but not applied anywhere.
type SyncConfig struct {
	ConflictWindow time.Duration `json:"conflict_window"`
	AckTimeout     time.Duration `json:"ack_timeout"`
	BatchTimeout   time.Duration `json:"batch_timeout"`
}

// ClientConfig tunes the client-side sync queue.
type ClientConfig struct {
	CursorThrottle  time.Duration `json:"cursor_throttle"`
	CoalesceWindow  time.Duration `json:"coalesce_window"`
	AckTimeout      time.Duration `json:"ack_timeout"`
	QueueStorePath  string        `json:"queue_store_path"`
}

// Config is the process-wide configuration singleton, populated by
// Initialize. Core packages never read the environment directly; they
// take a *CanvasConfig or its accessors.
var Config *CanvasConfig

// Initialize loads configuration from environment and flags, applying
// defaults for anything left unset, and stores the result in Config.
func Initialize() (*CanvasConfig, error) {
	c := &CanvasConfig{
		Server: ServerConfig{
			Host:   "0.0.0.0",
			Port:   "8080",
			WSPath: "/ws",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "canvashub",
			Name:    "canvashub",
			SSLMode: "disable",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			LogDir: "/var/log/canvashub",
		},
		WebSocket: WebSocketConfig{
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingPeriod:      30 * time.Second,
			MaxMessageSize:  1 << 20,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			SendBufferSize:  256,
		},
		Room: RoomConfig{
			LivenessInterval: 30 * time.Second,
			JoinTimeout:      10 * time.Second,
		},
		Sync: SyncConfig{
			ConflictWindow: 1 * time.Second,
			AckTimeout:     5 * time.Second,
			BatchTimeout:   60 * time.Second,
		},
		Client: ClientConfig{
			CursorThrottle: 50 * time.Millisecond, // ~20/s
			CoalesceWindow: 300 * time.Millisecond,
			AckTimeout:     5 * time.Second,
			QueueStorePath: "./canvashub-client.db",
		},
	}

	loadFromEnv(c)
	loadFromFlags(c)

	if err := c.validate(); err != nil {
		return nil, err
	}

	Config = c
	return c, nil
}

func loadFromEnv(c *CanvasConfig) {
	setString(&c.Server.Host, "CANVASHUB_HOST")
	setString(&c.Server.Port, "CANVASHUB_PORT")
	setString(&c.Server.WSPath, "CANVASHUB_WS_PATH")

	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSL_MODE")

	setString(&c.Logging.Level, "CANVASHUB_LOG_LEVEL")
	setString(&c.Logging.LogDir, "CANVASHUB_LOG_DIR")
	if modules := os.Getenv("CANVASHUB_TRACE_MODULES"); modules != "" {
		c.Logging.TraceModules = splitAndTrim(modules)
	}

	setDuration(&c.Sync.ConflictWindow, "CANVASHUB_CONFLICT_WINDOW")
	setDuration(&c.Sync.AckTimeout, "CANVASHUB_ACK_TIMEOUT")
	setDuration(&c.Sync.BatchTimeout, "CANVASHUB_BATCH_TIMEOUT")

	setString(&c.Client.QueueStorePath, "CANVASHUB_CLIENT_QUEUE_PATH")
}

func loadFromFlags(c *CanvasConfig) {
	host := flag.String("host", c.Server.Host, "server bind host")
	port := flag.String("port", c.Server.Port, "server bind port")
	wsPath := flag.String("ws-path", c.Server.WSPath, "WebSocket upgrade path")
	logLevel := flag.String("log-level", c.Logging.Level, "logging level (TRACE, DEBUG, INFO, WARN, ERROR, FATAL)")
	logDir := flag.String("log-dir", c.Logging.LogDir, "directory for log files")

	if !flag.Parsed() {
		flag.Parse()
	}

	c.Server.Host = *host
	c.Server.Port = *port
	c.Server.WSPath = *wsPath
	c.Logging.Level = strings.ToUpper(*logLevel)
	c.Logging.LogDir = *logDir
}

func (c *CanvasConfig) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port must not be empty")
	}
	if c.Server.WSPath == "" || !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("websocket path must be an absolute path, got %q", c.Server.WSPath)
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// DSN renders the Postgres connection string for lib/pq.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// GetString returns an environment variable or a fallback, for ad-hoc
// lookups outside the CanvasConfig surface.
func GetString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetInt mirrors GetString for integer-valued knobs.
func GetInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
