package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/sonde-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sonde-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sonde-etl/internal/adapter/mapbox"
	mqttadapter "github.com/couchcryptid/sonde-etl/internal/adapter/mqtt"
	"github.com/couchcryptid/sonde-etl/internal/adapter/radiosondy"
	"github.com/couchcryptid/sonde-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/sonde-etl/internal/config"
	"github.com/couchcryptid/sonde-etl/internal/domain"
	"github.com/couchcryptid/sonde-etl/internal/observability"
	"github.com/couchcryptid/sonde-etl/internal/pipeline"
	"github.com/couchcryptid/sonde-etl/internal/registry"
)

const serviceName = "sonde-etl"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: serviceName,
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		logger.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	publishers, closers, err := buildPublishers(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start publishers", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	reg := registry.New(registry.Config{
		Capacity:         cfg.HistoryCapacity,
		ActiveTimeout:    cfg.ActiveTimeout,
		VisibilityWindow: cfg.VisibilityWindow,
		Reference:        domain.Reference{Lat: cfg.ReferenceLat, Lon: cfg.ReferenceLon},
	}, clock)

	fetcher := radiosondy.NewClient(cfg.AggregatorURL, logger)
	p := pipeline.New(fetcher, reg, geocoder, publishers, pipeline.Config{
		Query:        domain.Query{Filter: cfg.SondeFilter},
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.FetchMaxAttempts,
			BaseDelay:   cfg.FetchBackoff,
			MaxDelay:    cfg.FetchMaxBackoff,
		},
		Location: cfg.Location,
		Clock:    clock,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, reg, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	for _, c := range closers {
		c(logger)
	}
	observability.ShutdownTracing(shutdownCtx, shutdownTracing, logger)

	logger.Info("shutdown complete")
}

type closer func(logger *slog.Logger)

// buildPublishers starts every enabled snapshot sink. Sinks that fail to
// start abort startup; an unreachable MQTT broker does not, since paho
// keeps retrying in the background.
func buildPublishers(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]pipeline.Publisher, []closer, error) {
	var (
		publishers []pipeline.Publisher
		closers    []closer
	)

	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		publishers = append(publishers, w)
		closers = append(closers, func(l *slog.Logger) {
			if err := w.Close(); err != nil {
				l.Error("kafka writer close error", "error", err)
			}
		})
		logger.Info("kafka publisher enabled", "topic", cfg.KafkaSinkTopic)
	}

	if cfg.MQTTEnabled {
		m := mqttadapter.NewPublisher(mqttadapter.Config{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		go func() {
			if err := m.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mqtt initial connect failed", "error", err)
			}
		}()
		publishers = append(publishers, m)
		closers = append(closers, func(*slog.Logger) { m.Disconnect() })
		logger.Info("mqtt publisher enabled", "broker", cfg.MQTTBroker, "topic_prefix", cfg.MQTTTopicPrefix)
	}

	if cfg.SQLiteEnabled {
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			for _, c := range closers {
				c(logger)
			}
			return nil, nil, err
		}
		publishers = append(publishers, store)
		closers = append(closers, func(l *slog.Logger) {
			if err := store.Close(); err != nil {
				l.Error("sqlite close error", "error", err)
			}
		})
	}

	return publishers, closers, nil
}
