package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/api"
	"github.com/isdelr/ender-monitor-be/internal/auth"
	"github.com/isdelr/ender-monitor-be/internal/config"
	"github.com/isdelr/ender-monitor-be/internal/database"
	"github.com/isdelr/ender-monitor-be/internal/insights"
	"github.com/isdelr/ender-monitor-be/internal/kafka"
	"github.com/isdelr/ender-monitor-be/internal/logger"
	"github.com/isdelr/ender-monitor-be/internal/monitoring"
	"github.com/isdelr/ender-monitor-be/internal/services"
	"github.com/isdelr/ender-monitor-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a dashboard token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	logger.Init("info")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel)

	if *issueToken != "" {
		printToken(cfg, *issueToken, *tokenTTL)
		return
	}

	// Set up the two stores; each owns its own handle so one can fail without the other.
	eventService, err := openEventStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.EventStore).Msg("Failed to initialize event store")
	}
	defer eventService.Close()

	statsService, err := openStatsStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StatsDriver).Msg("Failed to initialize stats store")
	}
	defer statsService.Close()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	var sink *kafka.Sink
	if cfg.Kafka.Enabled() {
		sink = kafka.NewSink(cfg.Kafka)
		hub.Register(sink)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Forwarding live events to kafka")
	}

	// Set up and run the background sampler
	source, err := monitoring.NewSource(cfg.SampleSource, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize reading source")
	}
	current := insights.NewCurrent()
	sampler := monitoring.NewSampler(
		monitoring.Options{Interval: cfg.SampleInterval, StoreTimeout: cfg.StoreTimeout},
		source, eventService, statsService, hub,
		insights.NewRandomDetector(nil), insights.NewRandomAdvisor(nil), current,
	)
	go sampler.Run()

	// Set up router
	router := api.NewRouter(api.Deps{
		Hub:            hub,
		Export:         services.NewExportService(eventService, statsService),
		Insights:       current,
		Auth:           auth.New(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sampler.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Sampler did not finish in time")
	}
	hub.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if sink != nil {
		if err := sink.Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("Kafka sink did not drain")
		}
	}

	log.Info().Msg("Server exiting")
}

// printToken writes a token signed with JWT_SECRET to stdout.
func printToken(cfg *config.Config, subject string, ttl time.Duration) {
	authn := auth.New(cfg.JWTSecret)
	if authn == nil {
		log.Fatal().Msg("JWT_SECRET must be set to issue tokens")
	}
	token, err := authn.GenerateToken(subject, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}

func openEventStore(cfg *config.Config) (services.EventServiceProvider, error) {
	switch cfg.EventStore {
	case "redis":
		svc, err := services.NewRedisEventService(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		db, err := database.New(database.SQLite, cfg.EventDBPath)
		if err != nil {
			return nil, err
		}
		svc, err := services.NewSQLEventService(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return svc, nil
	}
}

func openStatsStore(cfg *config.Config) (services.StatsServiceProvider, error) {
	dialect := database.Dialect(cfg.StatsDriver)
	db, err := database.New(dialect, cfg.StatsDSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return services.NewStatsService(db), nil
}
