package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourusername/hitcounter/api"
	"github.com/yourusername/hitcounter/core"
	"github.com/yourusername/hitcounter/metrics"
	"github.com/yourusername/hitcounter/pkg/hitcounter"
	"github.com/yourusername/hitcounter/store"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

// run starts the service and returns an exit code.
func run() int {
	configPath := flag.String("config", "", "optional YAML file with the window policy under 'defaults'")
	flag.Parse()

	logger, err := newLogger(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	instanceID := uuid.NewString()
	logger = logger.With(zap.String("instance", instanceID))

	windowConfig, err := loadWindowConfig(*configPath)
	if err != nil {
		logger.Error("config error", zap.Error(err))
		return 1
	}
	window, err := core.NewSlidingWindow(windowConfig)
	if err != nil {
		logger.Error("invalid window", zap.Error(err))
		return 1
	}

	storage, ping, closeStore, err := newStore(logger)
	if err != nil {
		logger.Error("store error", zap.Error(err))
		return 1
	}

	tracker := metrics.NewMetrics()
	handler := api.NewHandler(storage, window, tracker, logger)

	mux := api.Routes(handler, tracker)
	mux.HandleFunc("/health", healthHandler(instanceID, ping))
	mux.HandleFunc("/", rootHandler)

	server := &http.Server{
		Addr:              ":" + getEnv("PORT", "8080"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("hit counter service listening",
		zap.String("addr", server.Addr),
		zap.Int64("window", window.Width()),
		zap.Stringer("ordering", window.Config().Policy),
		zap.Stringer("lookup", window.Config().Lookup))

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := multierr.Append(server.Shutdown(shutdownCtx), closeStore()); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
		exitCode = 1
	}
	return exitCode
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	if parsed == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(parsed)
	return config.Build()
}

// loadWindowConfig reads the default policy of a hitcounter YAML file, or
// returns the built-in defaults when path is empty.
func loadWindowConfig(path string) (core.Config, error) {
	config := hitcounter.NewConfig()
	if path != "" {
		loaded, err := hitcounter.LoadConfigFromFile(path)
		if err != nil {
			return core.Config{}, err
		}
		config = loaded
	}
	return config.Defaults.WindowConfig()
}

// newStore picks Redis when REDIS_ADDR is set, memory otherwise.
func newStore(logger *zap.Logger) (store.Store, func(context.Context) error, func() error, error) {
	redisAddr := getEnv("REDIS_ADDR", "")
	if redisAddr == "" {
		logger.Warn("using in-memory storage, hit logs are not shared between instances")
		noop := func(context.Context) error { return nil }
		return store.NewMemoryStore(), noop, func() error { return nil }, nil
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	ttl, err := time.ParseDuration(getEnv("STORE_TTL", "1h"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("STORE_TTL: %w", err)
	}

	redisStore := store.NewRedisStore(store.RedisConfig{
		Addr:     redisAddr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		TTL:      ttl,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisStore.Ping(pingCtx); err != nil {
		return nil, nil, nil, multierr.Append(fmt.Errorf("connect to redis at %s: %w", redisAddr, err), redisStore.Close())
	}
	logger.Info("connected to redis", zap.String("addr", redisAddr), zap.Int("db", db), zap.Duration("ttl", ttl))
	return redisStore, redisStore.Ping, redisStore.Close, nil
}

func healthHandler(instanceID string, ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":      status,
			"service":     "hitcounter",
			"version":     version,
			"instance_id": instanceID,
		})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service": "Hit Counter Service",
		"version": version,
		"endpoints": map[string]string{
			"POST /record":            "Record a hit for a key",
			"GET /hits":               "Hits for a key in the window ending at a timestamp",
			"DELETE /counters":        "Forget a key",
			"GET /metrics":            "Statistics (JSON)",
			"GET /metrics/prometheus": "Statistics (Prometheus)",
			"GET /health":             "Health check",
		},
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
