package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hitcounter/cmd/demo/handlers"
	"github.com/yourusername/hitcounter/pkg/hitcounter"
)

func main() {
	port := flag.String("port", "8080", "Port to run the server on")
	configFile := flag.String("config", "cmd/demo/config.yaml", "Path to configuration file")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("loading configuration", zap.String("path", *configFile))
	meter, err := hitcounter.NewMeter(
		hitcounter.WithConfigFile(*configFile),
		hitcounter.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to create meter", zap.Error(err))
	}

	stopCleanup := meter.StartBackgroundCleanup()
	defer stopCleanup()

	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           newMux(meter, *port),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("demo server listening", zap.String("url", "http://localhost:"+*port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", zap.Error(err))
	}
}

func newMux(meter hitcounter.Meter, port string) *http.ServeMux {
	mux := http.NewServeMux()

	// not metered
	mux.HandleFunc("/health", handlers.Health)

	mux.Handle("/api/search", meter.Middleware(http.HandlerFunc(handlers.Search)))
	mux.Handle("/api/create", meter.Middleware(http.HandlerFunc(handlers.Create)))
	mux.Handle("/api/login", meter.Middleware(http.HandlerFunc(handlers.Login)))
	mux.Handle("/api/update", meter.Middleware(http.HandlerFunc(handlers.Update)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, `Hit Counter Demo Server

Available endpoints:
  GET  /health       - Health check (not metered)
  GET  /api/search   - Search (100 hits per 60s)
  POST /api/create   - Create resource (20 hits per 60s)
  POST /api/login    - Login (5 hits per 60s)
  PUT  /api/update   - Update resource (30 hits per 60s)

Try it:
  curl -i http://localhost:%s/api/search?q=test
  curl -i -X POST http://localhost:%s/api/login

Response headers:
  X-Hits-Window         - Trailing window width in seconds
  X-Hits-Count          - Hits in the window
  X-RateLimit-Limit     - Hits allowed in the window
  X-RateLimit-Remaining - Hits left before requests are rejected
  Retry-After           - Seconds until the oldest hit leaves the window
`, port, port)
	})
	return mux
}
