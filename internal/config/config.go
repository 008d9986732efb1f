// Package config loads server configuration from an optional YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Log      LogConfig      `yaml:"log"`
	Room     RoomConfig     `yaml:"room"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" default:":8080"`
	Production     bool     `yaml:"production"`
	AllowedOrigins []string `yaml:"allowed_origins" default:"[\"http://localhost:4200\",\"http://localhost:5173\"]"`
	StaticDir      string   `yaml:"static_dir" default:"frontend/dist"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" default:"mysql" validate:"oneof=mysql postgres"`
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host" default:"localhost"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name" default:"collab"`
	SSLMode         string        `yaml:"ssl_mode" default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"100" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"10" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"1h"`
	Debug           bool          `yaml:"debug"`
}

// GetDSN returns the explicit DSN or builds one for the configured driver.
func (d DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "postgres":
		port := d.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			d.Host, port, d.User, d.Password, d.Name, d.SSLMode)
	default:
		port := d.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, port, d.Name)
	}
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	RoomCacheTTL time.Duration `yaml:"room_cache_ttl" default:"24h"`
	TokenIdleTTL time.Duration `yaml:"token_idle_ttl" default:"720h"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic       string   `yaml:"topic" default:"collab-room-events"`
	GroupPrefix string   `yaml:"group_prefix" default:"collab-room"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL    time.Duration `yaml:"token_ttl" default:"168h"`
	FrontendURL string        `yaml:"frontend_url" default:"/"`
}

type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri" default:"http://localhost:8080/api/v1/auth/callback"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Enabled reports whether provider credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
	File   string `yaml:"file"`
}

type RoomConfig struct {
	CodeAttempts int `yaml:"code_attempts" default:"10" validate:"gte=1,lte=100"`
}

// Load reads the YAML file at path (if any), applies environment overrides
// and defaults, and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(err, "failed to parse config file")
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if os.Getenv("ENV") == "production" {
		c.Server.Production = true
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Database.Host, "MYSQL_HOST")
	setString(&c.Database.Port, "MYSQL_PORT")
	setString(&c.Database.User, "MYSQL_USER")
	setString(&c.Database.Password, "MYSQL_PASSWORD")
	setString(&c.Database.Name, "MYSQL_DATABASE")

	if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		c.Redis.Addr = host + ":" + port
	}
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	setString(&c.Kafka.GroupPrefix, "KAFKA_GROUP_ID")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.FrontendURL, "FRONTEND_URL")

	setString(&c.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")

	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("ROOM_CODE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Room.CodeAttempts = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return errors.New("spotify client_id and client_secret must be set together")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
