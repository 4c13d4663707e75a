// Command dexfeed runs the real-time DEX market-data and swap-transaction
// service: it ingests a push provider's transaction stream, extracts and
// validates trades into a bounded price index, and serves quote/swap HTTP
// requests against it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcsign/dexfeed/internal/api"
	"github.com/arcsign/dexfeed/internal/builder"
	"github.com/arcsign/dexfeed/internal/builder/amm"
	"github.com/arcsign/dexfeed/internal/builder/bonding"
	"github.com/arcsign/dexfeed/internal/config"
	"github.com/arcsign/dexfeed/internal/extractor"
	"github.com/arcsign/dexfeed/internal/fallback"
	"github.com/arcsign/dexfeed/internal/logging"
	"github.com/arcsign/dexfeed/internal/metrics"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/arcsign/dexfeed/internal/priceindex"
	"github.com/arcsign/dexfeed/internal/rpc"
	"github.com/arcsign/dexfeed/internal/source"
	"github.com/arcsign/dexfeed/internal/stats"
	"github.com/arcsign/dexfeed/internal/validator"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, os.Stderr)
	pipeline := &stats.Pipeline{}
	pipeline.Start()
	rec := metrics.NewPrometheusMetrics()

	registry := builder.NewRegistry()
	registerBuilders(registry, log)

	watched := cfg.WatchedPrograms
	if len(watched) == 0 {
		watched = registry.SupportedProgramIds()
	}

	cache := priceindex.New(priceindex.Config{
		CeilingBytes:     int64(cfg.CacheMaxMB) * 1024 * 1024,
		CleanupThreshold: cfg.CleanupThreshold,
		Whitelist:        registry.Whitelist(),
		Logger:           logging.Component(log, "priceindex"),
	})

	health := rpc.NewSimpleHealthTrackerWithConfig(rpc.HealthConfig{
		FailureThreshold:  cfg.RPCHealthFailureThreshold,
		SuccessThreshold:  cfg.RPCHealthSuccessThreshold,
		CircuitOpenWindow: time.Duration(cfg.RPCHealthCircuitOpenWindowSec) * time.Second,
		LatencyDecay:      cfg.RPCHealthLatencyDecay,
	})
	httpRPCClient, err := rpc.NewHTTPClient(cfg.RPCEndpoints, 10*time.Second, health, logging.Component(log, "rpc"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct rpc client")
	}
	var rpcClient rpc.Client = rpc.NewMetricsClient(httpRPCClient, rec)

	var priceFallback *fallback.Fallback
	if cfg.AggregatorURL != "" {
		priceFallback = fallback.New(fallback.Config{
			AggregatorURL:  cfg.AggregatorURL,
			LabelToProgram: fallback.DefaultLabelToProgram,
			IsSupported:    registry.Whitelist(),
			Log:            logging.Component(log, "fallback"),
		})
	}

	txSource := newSource(cfg, log)
	extract := extractor.New(nil, logging.Filtered(logging.Component(log, "extractor"), zerolog.ErrorLevel))
	validate := validator.New(registry.Whitelist(), logging.Component(log, "validator"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, err := txSource.Subscribe(ctx, watched, cfg.Commitment)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to transaction source")
	}
	go runIngestion(ctx, records, extract, validate, cache, pipeline, registry.Whitelist(), log)

	apiServer := api.New(api.Config{
		Cache:     cache,
		Registry:  registry,
		RPCClient: rpcClient,
		Fallback:  priceFallback,
		Metrics:   rec,
		Pipeline:  pipeline,
		Log:       logging.Component(log, "api"),
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: apiServer.Handler(),
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	shutdown(cancel, httpServer, txSource, cache, rpcClient, log)
}

// registerBuilders wires the two reference builders into registry, per
// spec.md §4.5. A real deployment registers one builder per DEX protocol
// it tracks; these two (a constant-product AMM and a bonding-curve
// launchpad) are this repository's shipped reference implementations.
func registerBuilders(registry *builder.Registry, log zerolog.Logger) {
	ammProgram := solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	bondingProgram := solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	if err := registry.Register(ammProgram, amm.New); err != nil {
		log.Error().Err(err).Msg("failed to register amm builder")
	}
	if err := registry.Register(bondingProgram, bonding.New); err != nil {
		log.Error().Err(err).Msg("failed to register bonding builder")
	}
}

// newSource constructs the configured Transaction Source implementation
// (§4.1's two interchangeable transports, selected by SOURCE_KIND).
func newSource(cfg *config.Config, log zerolog.Logger) source.Source {
	sourceLog := logging.Component(log, "source")
	switch cfg.SourceKind {
	case config.SourceGRPC:
		return source.NewGRPCSource(cfg.SourceEndpoint, cfg.SourceToken, sourceLog)
	default:
		return source.NewWebSocketSource(cfg.SourceEndpoint, sourceLog)
	}
}

// runIngestion drains records into the extractor -> validator -> price
// index pipeline until ctx is cancelled, per spec.md §5's single dedicated
// ingestion task.
func runIngestion(
	ctx context.Context,
	records <-chan *models.TransactionRecord,
	extract *extractor.Extractor,
	validate *validator.Validator,
	cache *priceindex.Cache,
	pipeline *stats.Pipeline,
	watched func(programID string) bool,
	log zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-records:
			if !ok {
				return
			}
			pipeline.TransactionsReceived.Add(1)

			result := extract.Extract(record, watched)
			if result.TotalTrades == 0 {
				continue
			}
			pipeline.TradesExtracted.Add(int64(result.TotalTrades))

			observations, rejections := validate.Validate(result.Trades, result.MemeEvents, record.Meta)
			pipeline.Rejections.Add(int64(len(rejections)))
			for _, rej := range rejections {
				log.Debug().Str("signature", record.Signature).Str("reason", rej.Reason).Msg("trade rejected")
			}

			for _, obs := range observations {
				if cache.Put(obs) {
					pipeline.ObservationsStored.Add(1)
				}
			}
		}
	}
}

// shutdown waits for SIGINT/SIGTERM and then performs the orderly shutdown
// spec.md §5 describes: stop keepalive, close the connection, clear D, exit.
func shutdown(
	cancel context.CancelFunc,
	httpServer *http.Server,
	txSource source.Source,
	cache *priceindex.Cache,
	rpcClient rpc.Client,
	log zerolog.Logger,
) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info().Msg("shutdown signal received, draining")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}

	if err := txSource.Close(); err != nil {
		log.Warn().Err(err).Msg("transaction source close failed")
	}
	cache.Clear()
	if err := rpcClient.Close(); err != nil {
		log.Warn().Err(err).Msg("rpc client close failed")
	}

	log.Info().Msg("shutdown complete")
}
