package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"flightproxy/internal/flight/cache"
	"flightproxy/internal/flight/handler"
	flightmetrics "flightproxy/internal/flight/metrics"
	"flightproxy/internal/flight/normalize"
	"flightproxy/internal/flight/service"
	"flightproxy/internal/lookuplog"
	kafkasink "flightproxy/internal/lookuplog/store/kafka"
	"flightproxy/internal/lookuplog/store/memory"
	pgstore "flightproxy/internal/lookuplog/store/postgres"
	"flightproxy/internal/platform/config"
	"flightproxy/internal/platform/database"
	"flightproxy/internal/platform/httpserver"
	"flightproxy/internal/platform/logger"
	"flightproxy/internal/platform/metrics"
	"flightproxy/internal/platform/redis"
	"flightproxy/internal/ratelimit"
	httptransport "flightproxy/internal/transport/http"
	"flightproxy/internal/upstream"
	"flightproxy/pkg/platform/circuit"
)

const kafkaPartitions = 3

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("flight proxy stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	fm := flightmetrics.New(registry)

	if !cfg.Upstream.HasCredentials() {
		log.Warn("TDX credentials not configured; lookups will fail until TDX_ID and TDX_SECRET are set")
	}
	tokens := upstream.NewTokenCache(cfg.Upstream.ClientID, cfg.Upstream.ClientSecret,
		upstream.WithTokenURL(cfg.Upstream.TokenURL),
		upstream.WithTokenLogger(log),
		upstream.WithTokenMetrics(fm),
	)
	fids := upstream.NewClient(
		upstream.WithBaseURL(cfg.Upstream.BaseURL),
		upstream.WithRequestTimeout(cfg.Upstream.RequestTimeout),
		upstream.WithMaxRetryWait(cfg.Upstream.MaxRetryWait),
		upstream.WithLogger(log),
		upstream.WithMetrics(fm),
	)
	limiter := ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)

	health := map[string]httptransport.HealthCheck{}
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close failed", "error", err)
			}
		}
	}()

	var wg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer func() {
		cancelBg()
		wg.Wait()
	}()

	results, err := buildResultCache(ctx, bgCtx, &wg, cfg, log, health, &closers)
	if err != nil {
		return err
	}

	svc, err := service.New(tokens, fids, limiter, results,
		service.WithLogger(log),
		service.WithMetrics(fm),
		service.WithAliases(normalize.DefaultAliases.With(cfg.Upstream.ExtraAliases...)),
		service.WithPartitions(partitionsFrom(cfg.Partitions)),
		service.WithResultTTL(cfg.Cache.TTL),
		service.WithLookupTimeout(cfg.Upstream.LookupTimeout),
	)
	if err != nil {
		return err
	}

	sink, err := buildTrailSink(ctx, cfg, log, health, &closers)
	if err != nil {
		return err
	}
	publisher := lookuplog.NewPublisher(sink, lookuplog.WithLogger(log))
	wg.Go(func() {
		if err := publisher.Run(bgCtx); err != nil {
			log.Warn("lookup trail drain incomplete", "error", err)
		}
	})

	flights := handler.New(svc, log,
		handler.WithRecorder(publisher),
		handler.WithClientHashKey([]byte(cfg.Trail.HashKey)),
	)
	router := httptransport.NewRouter(httptransport.Deps{
		Flights:  flights,
		Metrics:  metrics.New(registry),
		Gatherer: registry,
		Health:   health,
		Logger:   log,
	})
	srv := httpserver.New(cfg.Server, cfg.Upstream, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting flight proxy", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down flight proxy")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// buildResultCache returns the in-process store, fronted by Redis when
// configured. A Redis outage trips the breaker and lookups fall back to
// memory.
func buildResultCache(ctx, bgCtx context.Context, wg *sync.WaitGroup, cfg config.Config, log *slog.Logger,
	health map[string]httptransport.HealthCheck, closers *[]func() error) (service.ResultCache, error) {
	local := cache.NewInMemoryStore()
	if cfg.Cache.SweepInterval > 0 {
		wg.Go(func() {
			_ = local.StartSweeper(bgCtx, cfg.Cache.SweepInterval)
		})
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Info("result cache: in-memory")
		return local, nil
	}
	*closers = append(*closers, client.Close)
	health["redis"] = client.Health

	breaker := circuit.New("result-cache", circuit.WithFailureThreshold(cfg.Cache.BreakerFailures))
	log.Info("result cache: redis with in-memory fallback")
	return cache.NewFallbackStore(cache.NewRedisStore(client.Client), local, breaker, log), nil
}

// buildTrailSink prefers Kafka, then Postgres, then memory.
func buildTrailSink(ctx context.Context, cfg config.Config, log *slog.Logger,
	health map[string]httptransport.HealthCheck, closers *[]func() error) (lookuplog.Sink, error) {
	if len(cfg.Trail.KafkaBrokers) > 0 {
		client, err := kafkasink.NewClient(cfg.Trail.KafkaBrokers, cfg.Trail.Topic)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() error { client.Close(); return nil })
		if err := kafkasink.EnsureTopic(ctx, client, cfg.Trail.Topic, kafkaPartitions); err != nil {
			return nil, err
		}
		health["kafka"] = client.Ping
		log.Info("lookup trail: kafka", "topic", cfg.Trail.Topic)
		return kafkasink.New(client, cfg.Trail.Topic), nil
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		*closers = append(*closers, db.Close)
		store := pgstore.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		health["postgres"] = db.PingContext
		log.Info("lookup trail: postgres")
		return store, nil
	}

	log.Info("lookup trail: in-memory")
	return memory.NewInMemoryStore(memory.DefaultLimit), nil
}

// partitionsFrom overlays configured lists on the defaults.
func partitionsFrom(p config.Partitions) service.Partitions {
	out := service.DefaultPartitions()
	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	override(&out.InternationalCarriers, p.InternationalCarriers)
	override(&out.DomesticCarriers, p.DomesticCarriers)
	override(&out.InternationalOrder, p.InternationalOrder)
	override(&out.DomesticOrder, p.DomesticOrder)
	override(&out.DefaultOrder, p.DefaultOrder)
	return out
}
