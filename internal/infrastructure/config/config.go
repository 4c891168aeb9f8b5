// Package config loads the server configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-status-hub/internal/infrastructure/logger"
)

// Config holds the server configuration.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// ShutdownTimeout bounds the graceful shutdown sequence.
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	// CommitTimeout bounds every record-store call made by the gateway.
	CommitTimeout time.Duration `mapstructure:"COMMIT_TIMEOUT"`
	// NotifyTimeout bounds a single status-change notification.
	NotifyTimeout time.Duration `mapstructure:"NOTIFY_TIMEOUT"`

	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration `mapstructure:"WS_HANDSHAKE_TIMEOUT"`
	// PingPeriod is how often the server pings WebSocket clients.
	PingPeriod time.Duration `mapstructure:"WS_PING_PERIOD"`
	// PongWait is how long a WebSocket client may stay silent before it is reaped.
	PongWait time.Duration `mapstructure:"WS_PONG_WAIT"`
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `mapstructure:"WS_WRITE_TIMEOUT"`
	// SendQueue is the outbound frame buffer per connection.
	SendQueue int `mapstructure:"SEND_QUEUE"`
	// SSEKeepAlive is the interval of SSE keepalive frames.
	SSEKeepAlive time.Duration `mapstructure:"SSE_KEEPALIVE"`

	// StoreDriver selects the record store: "memory" or "mongo".
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// MongoURI is the MongoDB connection string, used when StoreDriver is "mongo".
	MongoURI string `mapstructure:"MONGODB_URI"`
	// MongoDatabase is the database holding services, incidents and uptime.
	MongoDatabase string `mapstructure:"MONGODB_DATABASE"`

	// AuthSecret is the HS256 key used to verify bearer tokens.
	AuthSecret string `mapstructure:"AUTH_SECRET"`
	// AuthIssuer is the required iss claim.
	AuthIssuer string `mapstructure:"AUTH_ISSUER"`

	// SMTPHost enables e-mail status alerts when set.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM_ADDRESS"`
	// AlertRecipients is a comma-separated list of e-mail addresses.
	AlertRecipients string `mapstructure:"ALERT_EMAIL_RECIPIENTS"`

	// KafkaBrokers enables Kafka status alerts when set (comma-separated).
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_STATUS_TOPIC"`

	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	LogOutput   string `mapstructure:"LOG_OUTPUT"`
	LogFilePath string `mapstructure:"LOG_FILE_PATH"`

	Env string `mapstructure:"APP_ENV"`
}

var defaults = map[string]any{
	"HTTP_ADDR":              ":8080",
	"SHUTDOWN_TIMEOUT":       "5s",
	"COMMIT_TIMEOUT":         "5s",
	"NOTIFY_TIMEOUT":         "10s",
	"WS_HANDSHAKE_TIMEOUT":   "10s",
	"WS_PING_PERIOD":         "25s",
	"WS_PONG_WAIT":           "60s",
	"WS_WRITE_TIMEOUT":       "10s",
	"SEND_QUEUE":             256,
	"SSE_KEEPALIVE":          "30s",
	"STORE_DRIVER":           "memory",
	"MONGODB_URI":            "",
	"MONGODB_DATABASE":       "statushub",
	"AUTH_SECRET":            "",
	"AUTH_ISSUER":            "status-hub",
	"SMTP_HOST":              "",
	"SMTP_PORT":              587,
	"SMTP_USER":              "",
	"SMTP_PASSWORD":          "",
	"SMTP_FROM_ADDRESS":      "",
	"ALERT_EMAIL_RECIPIENTS": "",
	"KAFKA_BROKERS":          "",
	"KAFKA_STATUS_TOPIC":     "service-status-changes",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "console",
	"LOG_OUTPUT":             "stdout",
	"LOG_FILE_PATH":          "",
	"APP_ENV":                "",
}

// Load reads .env (if present), then the environment, and validates the result.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !missingConfig(err) {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// missingConfig reports whether err only says the .env file is absent.
func missingConfig(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.StoreDriver {
	case "memory":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("config: MONGODB_URI must be set when STORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AuthSecret == "" && c.Env == "production" {
		return errors.New("config: AUTH_SECRET must be set when APP_ENV=production")
	}
	if c.CommitTimeout <= 0 {
		return errors.New("config: COMMIT_TIMEOUT must be positive")
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		return errors.New("config: WS_PONG_WAIT must be greater than WS_PING_PERIOD")
	}
	if c.SendQueue <= 0 {
		return errors.New("config: SEND_QUEUE must be positive")
	}
	if c.SMTPHost != "" && (c.SMTPFrom == "" || len(c.AlertRecipientList()) == 0) {
		return errors.New("config: SMTP_FROM_ADDRESS and ALERT_EMAIL_RECIPIENTS are required with SMTP_HOST")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AlertRecipientList splits AlertRecipients.
func (c *Config) AlertRecipientList() []string {
	return splitList(c.AlertRecipients)
}

// KafkaBrokerList splits KafkaBrokers. An empty list disables Kafka alerts.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// LoggerConfig builds the logger configuration.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.NewDefaultConfig()
	lc.Level, _ = logger.ParseLevel(c.LogLevel)
	lc.Format = c.LogFormat
	lc.Output = c.LogOutput
	lc.FilePath = c.LogFilePath
	return lc
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
