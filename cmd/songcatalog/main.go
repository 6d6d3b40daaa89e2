// Command songcatalog serves the song catalog over HTTP. The catalog is
// hydrated from the configured persistence driver at startup and written
// back when the process receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"songcatalog/internal/adapters/httpapi"
	"songcatalog/internal/config"
	"songcatalog/internal/core"
	"songcatalog/internal/infra/persistence/memory"
	"songcatalog/internal/persistence"
	"songcatalog/internal/query"
)

var (
	exitFunc              = os.Exit
	traceOutput io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := config.FromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "songcatalog: %v\n", err)
		return 2
	}
	fs := flag.NewFlagSet("songcatalog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	driver := fs.String("driver", string(cfg.Storage.Driver), "storage driver: file|sqlite|postgres|blob|memory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.Storage.Driver = persistence.Driver(*driver)

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("songcatalog exited with error", "error", err)
		return 1
	}
	return 0
}

// run serves until ctx is cancelled. ready, when non-nil, receives the bound
// listener address once the server accepts connections.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, ready func(net.Addr)) error {
	persister, err := persistence.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		_ = persister.Close()
		return err
	}

	var recorder core.MetricsRecorder = metrics
	if cfg.ExpvarMetrics {
		recorder = core.MultiMetricsRecorder{metrics, core.NewExpvarMetricsRecorder("")}
	}
	opts := []core.ServiceOption{core.WithLogger(logger), core.WithMetricsRecorder(recorder)}
	if cfg.IgnoreCase {
		opts = append(opts, core.WithSearchOptions(query.IgnoreCase()))
	}
	if cfg.TraceJSON {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceOutput)))
	}
	if cfg.AuditLog {
		opts = append(opts, core.WithAuditRecorder(core.NewLogAuditRecorder(logger)))
	}
	svc := core.NewService(memory.NewStore(), persister, opts...)
	if err := core.RegisterCatalogGauges(reg, svc); err != nil {
		_ = persister.Close()
		return err
	}
	if err := svc.Open(ctx); err != nil {
		_ = persister.Close()
		return err
	}

	handlerOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	}
	if cfg.ExpvarMetrics {
		handlerOpts = append(handlerOpts, httpapi.WithDebugVarsHandler(expvar.Handler()))
	}
	handler := httpapi.NewHandler(svc, handlerOpts...)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = svc.Close(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	logger.Info("songcatalog listening", "addr", ln.Addr().String(), "storage_driver", cfg.Storage.Driver)
	if ready != nil {
		ready(ln.Addr())
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		_ = svc.Close(context.Background())
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http server stopped with error", "error", err)
	}
	closeCtx, cancelClose := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelClose()
	// Save failures are logged by the service and do not change the exit code.
	_ = svc.Close(closeCtx)
	return nil
}
