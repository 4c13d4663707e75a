// Package config assembles the process's environment-driven configuration
// into a single validated struct at boot. No env-parsing library appears
// anywhere in the retrieved example pack, so this mirrors the teacher's
// own hand-parsed, typed configuration structs (e.g. app.AppConfig),
// adapted from file-backed to environment-backed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/arcsign/dexfeed/internal/models"
)

// SourceKind selects which Transaction Source implementation to run.
type SourceKind string

const (
	SourceGRPC      SourceKind = "grpc"
	SourceWebSocket SourceKind = "websocket"
)

// Config is the fully-resolved process configuration.
type Config struct {
	SourceKind       SourceKind
	SourceEndpoint   string
	SourceToken      string
	Commitment       models.Commitment
	WatchedPrograms  []string
	CacheMaxMB       int
	CleanupThreshold float64
	RPCEndpoints     []string
	AggregatorURL    string
	HTTPPort         int
	LogLevel         string

	RPCHealthFailureThreshold     int
	RPCHealthSuccessThreshold     int
	RPCHealthCircuitOpenWindowSec int
	RPCHealthLatencyDecay         float64
}

// Load reads configuration from the environment and validates it.
// Defaults follow spec.md §9's resolved Open Question (port 5551) and
// §4.4's cleanup threshold (0.85).
func Load() (*Config, error) {
	cfg := &Config{
		SourceKind:       SourceKind(getEnvDefault("SOURCE_KIND", string(SourceWebSocket))),
		SourceEndpoint:   os.Getenv("SOURCE_ENDPOINT"),
		SourceToken:      os.Getenv("SOURCE_TOKEN"),
		Commitment:       models.Commitment(getEnvDefault("COMMITMENT", string(models.CommitmentConfirmed))),
		WatchedPrograms:  splitNonEmpty(os.Getenv("WATCHED_PROGRAMS")),
		RPCEndpoints:     splitNonEmpty(os.Getenv("RPC_ENDPOINTS")),
		AggregatorURL:    os.Getenv("AGGREGATOR_ENDPOINT"),
		LogLevel:         getEnvDefault("LOG_LEVEL", "info"),
	}

	cacheMB, err := getEnvInt("CACHE_MAX_MB", 256)
	if err != nil {
		return nil, err
	}
	cfg.CacheMaxMB = cacheMB

	threshold, err := getEnvFloat("CACHE_CLEANUP_THRESHOLD", 0.85)
	if err != nil {
		return nil, err
	}
	cfg.CleanupThreshold = threshold

	port, err := getEnvInt("HTTP_PORT", 5551)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = port

	failureThreshold, err := getEnvInt("RPC_HEALTH_FAILURE_THRESHOLD", 3)
	if err != nil {
		return nil, err
	}
	cfg.RPCHealthFailureThreshold = failureThreshold

	successThreshold, err := getEnvInt("RPC_HEALTH_SUCCESS_THRESHOLD", 2)
	if err != nil {
		return nil, err
	}
	cfg.RPCHealthSuccessThreshold = successThreshold

	circuitWindow, err := getEnvInt("RPC_HEALTH_CIRCUIT_OPEN_WINDOW_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.RPCHealthCircuitOpenWindowSec = circuitWindow

	latencyDecay, err := getEnvFloat("RPC_HEALTH_LATENCY_DECAY", 0.2)
	if err != nil {
		return nil, err
	}
	cfg.RPCHealthLatencyDecay = latencyDecay

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SourceKind {
	case SourceGRPC, SourceWebSocket:
	default:
		return fmt.Errorf("config: unsupported SOURCE_KIND %q", c.SourceKind)
	}
	if c.SourceEndpoint == "" {
		return fmt.Errorf("config: SOURCE_ENDPOINT is required")
	}
	switch c.Commitment {
	case models.CommitmentProcessed, models.CommitmentConfirmed, models.CommitmentFinalized:
	default:
		return fmt.Errorf("config: unsupported COMMITMENT %q", c.Commitment)
	}
	if c.CacheMaxMB <= 0 {
		return fmt.Errorf("config: CACHE_MAX_MB must be positive")
	}
	if c.CleanupThreshold <= 0 || c.CleanupThreshold >= 1 {
		return fmt.Errorf("config: CACHE_CLEANUP_THRESHOLD must be in (0,1)")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: HTTP_PORT out of range")
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return f, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
