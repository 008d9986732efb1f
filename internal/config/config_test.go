package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
database:
  driver: postgres
  host: db
  user: app
  password: secret
auth:
  jwt_secret: "0123456789abcdef0123"
redis:
  room_cache_ttl: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.Redis.RoomCacheTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Redis.TokenIdleTTL)
	assert.Equal(t, "collab-room-events", cfg.Kafka.Topic)
	assert.Equal(t, 10, cfg.Room.CodeAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=collab sslmode=disable", cfg.Database.GetDSN())
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret-at-least-16")
	t.Setenv("PORT", "7070")
	t.Setenv("MYSQL_HOST", "mysql")
	t.Setenv("MYSQL_USER", "root")
	t.Setenv("MYSQL_PASSWORD", "pw")
	t.Setenv("MYSQL_DATABASE", "rooms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "root:pw@tcp(mysql:3306)/rooms?charset=utf8mb4&parseTime=True&loc=Local", cfg.Database.GetDSN())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr: true,
			errMsg:  "JWTSecret",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: true,
			errMsg:  "Driver",
		},
		{
			name:    "kafka enabled without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: true,
			errMsg:  "Brokers",
		},
		{
			name:    "spotify secret without id",
			mutate:  func(c *Config) { c.Spotify.ClientSecret = "secret" },
			wantErr: true,
			errMsg:  "client_id",
		},
		{
			name:    "invalid market length",
			mutate:  func(c *Config) { c.Spotify.Market = "USA" },
			wantErr: true,
			errMsg:  "Market",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	path := writeConfig(t, "auth:\n  jwt_secret: \"0123456789abcdef\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}
