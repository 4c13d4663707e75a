// Package api implements the Quote/Swap API (§4.6): HTTP handlers for
// health, quote lookup, and swap-transaction assembly. Routing uses the
// standard library's net/http ServeMux pattern routing — no routing
// framework appears anywhere in the retrieved corpus, so this is the one
// HTTP concern kept on the standard library.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/arcsign/dexfeed/internal/builder"
	"github.com/arcsign/dexfeed/internal/fallback"
	"github.com/arcsign/dexfeed/internal/metrics"
	"github.com/arcsign/dexfeed/internal/priceindex"
	"github.com/arcsign/dexfeed/internal/rpc"
	"github.com/arcsign/dexfeed/internal/stats"
	"github.com/rs/zerolog"
)

// Server bundles the dependencies handlers need: the Price Index (D), the
// Builder Registry (E), the RPC Client (K), and the External Price
// Fallback (G).
type Server struct {
	cache     *priceindex.Cache
	registry  *builder.Registry
	rpcClient rpc.Client
	fallback  *fallback.Fallback
	metrics   metrics.Recorder
	pipeline  *stats.Pipeline
	startedAt time.Time
	log       zerolog.Logger
}

// Config configures a new Server.
type Config struct {
	Cache     *priceindex.Cache
	Registry  *builder.Registry
	RPCClient rpc.Client
	Fallback  *fallback.Fallback
	Metrics   metrics.Recorder
	Pipeline  *stats.Pipeline
	Log       zerolog.Logger
}

// New constructs a Server and its started-at timestamp for /health uptime.
func New(cfg Config) *Server {
	return &Server{
		cache:     cfg.Cache,
		registry:  cfg.Registry,
		rpcClient: cfg.RPCClient,
		fallback:  cfg.Fallback,
		metrics:   cfg.Metrics,
		pipeline:  cfg.Pipeline,
		startedAt: time.Now(),
		log:       cfg.Log,
	}
}

// Handler returns the routed ServeMux, wrapped with a metrics-recording
// middleware applied uniformly to every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/quote/{mint}", s.handleQuote)
	mux.HandleFunc("POST /api/swap/{mint}", s.handleSwap)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return s.withMetrics(mux)
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Pattern, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// callRPCTimeout bounds the blockhash fetch during swap finalization.
const callRPCTimeout = 5 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callRPCTimeout)
}
