package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat/internal/cache"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/directory"
	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/handler"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/identity"
	"github.com/weiawesome/wes-io-chat/internal/kafka"
	"github.com/weiawesome/wes-io-chat/internal/notifier"
	"github.com/weiawesome/wes-io-chat/internal/presence"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	models := append(repository.Models(), &domain.UserModel{})
	if err := database.AutoMigrate(db, models...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	repo := repository.NewGormConversationRepository(db)

	// Redis backs the participant cache and, optionally, presence
	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Presence.Driver == "redis" {
		redisClient, err = cache.Connect(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
	}

	var participantCache cache.ParticipantCache = cache.NoopCache{}
	if cfg.Cache.Enabled {
		participantCache = cache.NewRedisParticipantCache(redisClient, cfg.Cache)
	}

	var presenceStore presence.Store
	switch cfg.Presence.Driver {
	case "redis":
		presenceStore = presence.NewRedisStore(redisClient, cfg.Presence.Prefix)
	case "database", "":
		presenceStore = presence.NewGormStore(db)
	default:
		logger.Fatal().Str("driver", cfg.Presence.Driver).Msg("unsupported presence driver")
	}
	tracker := presence.NewTracker(presenceStore)

	// Connection registry and heartbeat
	wsHub := hub.NewHub(cfg.WebSocket)
	monitor := hub.NewMonitor(wsHub, cfg.WebSocket.PingInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()

	// Fan-out, optionally across instances
	fanout := notifier.New(wsHub)
	var bus pubsub.PubSub
	subscriberDone := make(chan struct{})
	if cfg.PubSub.Enabled {
		if redisClient != nil && (cfg.PubSub.Driver == "redis" || cfg.PubSub.Driver == "") {
			bus = pubsub.NewRedisPubSubWithClient(redisClient)
		} else {
			bus, err = pubsub.NewPubSub(cfg.PubSub)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to initialize pubsub")
			}
		}
		fanout.WithPublisher(bus, cfg.InstanceID)
		go func() {
			defer close(subscriberDone)
			if err := fanout.Run(ctx, bus); err != nil {
				logger.Error().Err(err).Msg("relay subscriber stopped")
			}
		}()
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("cross-instance fan-out enabled")
	} else {
		close(subscriberDone)
	}

	// Message events
	var producer kafka.MessageProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewConfluentProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}

	chatSvc := service.NewChatService(service.Deps{
		Repo:      repo,
		Cache:     participantCache,
		Notifier:  fanout,
		Presence:  tracker,
		Directory: directory.NewGormDirectory(db),
		Producer:  producer,
	})
	d := dispatcher.New(wsHub, service.Routes(chatSvc))

	resolver, err := identity.New(cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create identity resolver")
	}

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins, cfg.Auth.Header)))

	handler.NewWSHandler(wsHub, d, resolver, cfg.WebSocket, cfg.Server.AllowedOrigins).RegisterRoutes(r)
	handler.NewHandler(chatSvc, resolver).RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("instance_id", cfg.InstanceID).Msg("chat gateway starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Close live connections while stores are still available for $disconnect.
	// Close returns after every unregister hook has dispatched, so Wait sees them all.
	wsHub.Close()
	d.Wait()

	cancel()
	<-monitorDone
	<-subscriberDone

	if bus != nil {
		if err := bus.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close pubsub")
		}
	}
	if err := producer.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close kafka producer")
	}

	logger.Info().Msg("chat gateway stopped")
}

func corsConfig(origins []string, identityHeader string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if identityHeader != "" {
		c.AllowHeaders = append(c.AllowHeaders, identityHeader)
	}

	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
