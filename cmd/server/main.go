package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danja/semem"
	"github.com/danja/semem/internal/observe"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON or YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := semem.DefaultConfig()
	if *configPath != "" {
		loaded, err := semem.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if v := os.Getenv("SEMEM_QUERY_ENDPOINT"); v != "" {
		cfg.Storage.QueryEndpoint = v
	}
	if v := os.Getenv("SEMEM_UPDATE_ENDPOINT"); v != "" {
		cfg.Storage.UpdateEndpoint = v
	}
	if v := os.Getenv("SEMEM_GRAPH_NAME"); v != "" {
		cfg.Storage.GraphName = v
	}
	if v := os.Getenv("SEMEM_SPARQL_USER"); v != "" {
		cfg.Storage.User = v
	}
	if v := os.Getenv("SEMEM_SPARQL_PASSWORD"); v != "" {
		cfg.Storage.Password = v
	}

	apiKey := os.Getenv("SEMEM_API_KEY")
	corsOrigins := os.Getenv("SEMEM_CORS_ORIGINS")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "semem"})
	if err != nil {
		slog.Error("initializing metrics provider", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	engine, err := semem.New(cfg, slog.Default())
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tell", h.handleTell)
	mux.HandleFunc("POST /ask", h.handleAsk)
	mux.HandleFunc("POST /augment", h.handleAugment)
	mux.HandleFunc("POST /zoom", h.handleZoom)
	mux.HandleFunc("POST /pan", h.handlePan)
	mux.HandleFunc("POST /tilt", h.handleTilt)
	mux.HandleFunc("POST /inspect", h.handleInspect)
	mux.HandleFunc("POST /train-vsom", h.handleTrainVSOM)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> metrics -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = metricsMiddleware(observe.DefaultMetrics(), handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // ingest/train-vsom can run long
		IdleTimeout:  120 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:    *metricsAddr,
		Handler: observe.MetricsHandler(),
	}

	go func() {
		slog.Info("metrics server starting", "addr", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
