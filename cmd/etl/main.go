package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/vehicle-incident-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/vehicle-incident-etl/internal/adapter/kafka"
	natsadapter "github.com/couchcryptid/vehicle-incident-etl/internal/adapter/nats"
	"github.com/couchcryptid/vehicle-incident-etl/internal/adapter/serpapi"
	"github.com/couchcryptid/vehicle-incident-etl/internal/api"
	"github.com/couchcryptid/vehicle-incident-etl/internal/config"
	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
	"github.com/couchcryptid/vehicle-incident-etl/internal/observability"
	"github.com/couchcryptid/vehicle-incident-etl/internal/pipeline"
	"github.com/couchcryptid/vehicle-incident-etl/internal/storage"
)

// source is a delivery transport the pipeline reads from.
type source interface {
	pipeline.Extractor
	io.Closer
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		os.Exit(1)
	}

	src, err := openSource(cfg, logger)
	if err != nil {
		logger.Error("failed to open delivery source", "error", err)
		_ = store.Close()
		os.Exit(1)
	}

	// Hospital search is feature-flagged via SERPAPI_ENABLED / SERPAPI_KEY.
	var finder domain.HospitalFinder
	if cfg.SerpAPIEnabled {
		finder = serpapi.NewClient(cfg.SerpAPIKey, cfg.SerpAPIZoom, cfg.SerpAPITimeout, metrics, logger)
		metrics.HospitalLookupEnabled.Set(1)
		logger.Info("hospital lookup enabled", "timeout", cfg.SerpAPITimeout, "zoom", cfg.SerpAPIZoom)
	} else {
		logger.Info("hospital lookup disabled, records will carry sentinels")
	}

	transformer := pipeline.NewTransformer(finder, logger)
	p := pipeline.New(src, transformer, store, logger, metrics)

	handler := api.NewHandler(store, finder, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, handler, p, cfg.HTTPRateLimit, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// The in-flight message finishes before Run returns.
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := src.Close(); err != nil {
		logger.Error("delivery source close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("record store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func openSource(cfg *config.Config, logger *slog.Logger) (source, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		conn, err := natsadapter.Connect(cfg.NATSURL, "vehicle-incident-etl", logger)
		if err != nil {
			return nil, err
		}
		sub, err := natsadapter.NewSubscriber(conn, cfg.NATSSubject, cfg.NATSBufferSize, logger)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return sub, nil
	case config.TransportKafka:
		logger.Info("kafka consumer configured", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
		return kafkaadapter.NewReader(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
