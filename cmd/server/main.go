// Package main provides the room server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/internal/api"
	"github.com/collab-room-system/internal/auth"
	"github.com/collab-room-system/internal/config"
	"github.com/collab-room-system/internal/engine"
	"github.com/collab-room-system/internal/logger"
	"github.com/collab-room-system/internal/queue"
	"github.com/collab-room-system/internal/room"
	"github.com/collab-room-system/internal/spotify"
	"github.com/collab-room-system/internal/store"
	"github.com/collab-room-system/internal/user"
	"github.com/collab-room-system/internal/vote"
	"github.com/collab-room-system/internal/ws"
	"github.com/collab-room-system/pkg/database"
	"github.com/collab-room-system/pkg/events"
	"github.com/collab-room-system/pkg/jwt"
	"github.com/collab-room-system/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

var (
	app        = kingpin.New("collab-room-server", "Collaborative music room server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.Output = "file"
		logCfg.File = *logfile
	}
	if err := logger.Init(logCfg); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(cfg); err != nil {
		zlog.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

// run wires the server and blocks until a shutdown signal.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zlog.Warn().Err(err).Msg("failed to close database")
		}
	}()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, "failed to reach redis at %s", cfg.Redis.Addr)
	}

	tokenStore := redis.NewTokenStore(redisClient, redis.WithTokenIdleTTL(cfg.Redis.TokenIdleTTL))
	roomCache := redis.NewRoomCache(redisClient, cfg.Redis.RoomCacheTTL)

	users := user.NewService(store.NewUserRepository(db))
	roomOpts := []room.Option{
		room.WithCache(roomCache),
		room.WithCodeAttempts(cfg.Room.CodeAttempts),
	}

	// Provider integrations stay untyped nil when disabled so the handlers
	// see a nil interface.
	var (
		identity   auth.Identity
		catalog    api.Catalog
		engineOpts []engine.Option
	)
	if cfg.Spotify.Enabled() {
		spotifyClient, err := spotify.New(ctx, cfg.Spotify)
		if err != nil {
			return errors.Wrap(err, "failed to create spotify client")
		}
		identity = spotifyClient
		catalog = spotifyClient
		roomOpts = append(roomOpts, room.WithCatalog(spotifyClient))
		engineOpts = append(engineOpts, engine.WithPlayback(spotify.NewPlayer(spotifyClient, tokenStore)))
	} else {
		zlog.Warn().Msg("spotify credentials missing, login, search and playback are disabled")
	}

	rooms := room.NewService(store.NewRoomRepository(db), roomOpts...)
	queues := queue.NewService(store.NewQueueRepository(db))
	votes := vote.NewService(store.NewVoteRepository(db))

	var hub *ws.Hub
	if cfg.Kafka.Enabled {
		relay := events.NewKafkaRelay(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupPrefix, uuid.NewString())
		defer func() {
			if err := relay.Close(); err != nil {
				zlog.Warn().Err(err).Msg("failed to close kafka relay")
			}
		}()
		hub = ws.NewHub(relay)
		go func() {
			if err := relay.Consume(ctx, hub.Deliver); err != nil {
				zlog.Error().Err(err).Msg("kafka relay stopped")
			}
		}()
		zlog.Info().Strs("brokers", cfg.Kafka.Brokers).Str("origin", relay.Origin()).Msg("kafka relay enabled")
	} else {
		hub = ws.NewHub(nil)
	}

	eng := engine.New(rooms, queues, votes, hub, engineOpts...)
	issuer := jwt.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	authHandler := auth.NewHandler(identity, tokenStore, users, issuer, cfg.Auth.FrontendURL, cfg.Auth.TokenTTL, cfg.Server.Production)
	apiHandler := api.NewHandler(eng, users, catalog)
	wsHandler := ws.NewHandler(hub, eng, cfg.Server.AllowedOrigins)

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Legacy provider callback path.
	router.GET("/auth/callback", func(c *gin.Context) {
		dest := "/api/v1/auth/callback"
		if raw := c.Request.URL.RawQuery; raw != "" {
			dest += "?" + raw
		}
		c.Redirect(http.StatusTemporaryRedirect, dest)
	})

	v1 := router.Group("/api/v1", auth.Optional(issuer))
	authHandler.RegisterRoutes(v1)
	apiHandler.RegisterRoutes(v1)

	realtime := router.Group("", auth.Optional(issuer))
	realtime.GET("/ws", wsHandler.HandleWebSocket)
	realtime.GET("/ws/:roomId", wsHandler.HandleWebSocket)
	v1.GET("/ws/:roomId", wsHandler.HandleWebSocket)

	if cfg.Server.StaticDir != "" {
		router.NoRoute(spaFallback(cfg.Server.StaticDir))
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zlog.Info().Msg("received shutdown signal")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	zlog.Info().Msg("server stopped")
	return nil
}

// spaFallback serves built frontend files and falls back to index.html for
// client-side routes. API paths keep their JSON 404.
func spaFallback(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		filePath := filepath.Join(dir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
			c.File(filePath)
			return
		}
		c.File(filepath.Join(dir, "index.html"))
	}
}
