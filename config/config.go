package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "WASTE_PORTAL"

type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Backend  BackendConfig  `json:"backend" mapstructure:"backend"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" mapstructure:"rabbitmq"`
	JWT      JWTConfig      `json:"jwt" mapstructure:"jwt"`
	Session  SessionConfig  `json:"session" mapstructure:"session"`
	Payments PaymentsConfig `json:"payments" mapstructure:"payments"`
	Timezone string         `json:"timezone" mapstructure:"timezone"`
}

type ServerConfig struct {
	Port string `json:"port" mapstructure:"port"`
}

type BackendConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// DatabaseConfig selects postgres (host fields) or sqlite (DSN).
type DatabaseConfig struct {
	Driver   string `json:"driver" mapstructure:"driver"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	DBName   string `json:"dbname" mapstructure:"dbname"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
	DSN      string `json:"dsn" mapstructure:"dsn"`
}

type RabbitMQConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
}

type JWTConfig struct {
	Secret string `json:"secret" mapstructure:"secret"`
}

type SessionConfig struct {
	CookieName    string        `json:"cookie_name" mapstructure:"cookie_name"`
	LoginRedirect string        `json:"login_redirect" mapstructure:"login_redirect"`
	IdleTTL       time.Duration `json:"idle_ttl" mapstructure:"idle_ttl"`
	SecureCookie  bool          `json:"secure_cookie" mapstructure:"secure_cookie"`
}

type PaymentsConfig struct {
	// DuplicateMatch is "user_id" or "name".
	DuplicateMatch string `json:"duplicate_match" mapstructure:"duplicate_match"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("backend.base_url", "http://localhost:3000/api")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "waste_portal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.dsn", "file:waste-portal.db?_pragma=busy_timeout(5000)")

	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", "5672")
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")

	v.SetDefault("jwt.secret", "")

	v.SetDefault("session.cookie_name", "wp_session")
	v.SetDefault("session.login_redirect", "/user")
	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.secure_cookie", false)

	v.SetDefault("payments.duplicate_match", "user_id")
	v.SetDefault("timezone", "Asia/Colombo")
}

// LoadConfig reads the JSON config file at path. A missing file leaves the
// defaults in place. Environment variables such as
// WASTE_PORTAL_DATABASE_HOST override both, and a .env file in the working
// directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Payments.DuplicateMatch {
	case "user_id", "name":
	default:
		return fmt.Errorf("payments.duplicate_match must be user_id or name, got %q", c.Payments.DuplicateMatch)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	return nil
}

// Location returns the configured time zone; validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
