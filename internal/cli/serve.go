package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"geuebt/internal/adapters/httpapi"
	"geuebt/internal/blob"
	"geuebt/internal/config"
	"geuebt/internal/core"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	TraceFile string
}

// NewServeCommand creates the serve command.
func NewServeCommand(root *rootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry HTTP API",
		Long: `Open the configured document and blob stores and serve the registry API
until SIGINT or SIGTERM is received.`,
		Example: `  # Serve with the embedded sqlite store
  geuebt serve

  # Serve against MongoDB
  geuebt serve --storage-driver mongo --mongo-uri mongodb://localhost:27017`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TraceFile, "trace", "", `write operation spans as JSON lines to FILE ("-" for stderr)`)
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, opts *ServeOptions) error {
	app, err := newApp(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close registry", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}
	return app.Serve(ctx, ln)
}

// app is a fully wired registry process.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	service *core.Service
	handler http.Handler
	closers []io.Closer
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts *ServeOptions) (*app, error) {
	maxBody, err := cfg.Server.MaxBodyBytes()
	if err != nil {
		return nil, err
	}
	store, err := core.OpenDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}

	a := &app{cfg: cfg, logger: logger}
	serviceOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithBlobStore(blobs),
	}

	routerOpts := httpapi.Options{Logger: logger, MaxBodyBytes: maxBody}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		serviceOpts = append(serviceOpts, core.WithMetricsRecorder(core.MultiMetricsRecorder{
			prom,
			core.NewExpvarMetricsRecorder(""),
		}))
		routerOpts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		routerOpts.MetricsPath = cfg.Metrics.Path
	}

	switch opts.TraceFile {
	case "":
	case "-":
		serviceOpts = append(serviceOpts, core.WithTracer(core.NewJSONTracer(os.Stderr)))
	default:
		f, err := os.OpenFile(opts.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		serviceOpts = append(serviceOpts, core.WithTracer(core.NewJSONTracer(f)))
	}

	a.service = core.NewService(store, serviceOpts...)
	a.handler = httpapi.NewRouter(a.service, routerOpts)
	logger.Info("registry ready",
		"storage", cfg.Storage.Driver,
		"blob", blobs.Driver(),
		"metrics", cfg.Metrics.Enabled,
	)
	return a, nil
}

// Serve handles requests on ln until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func (a *app) Serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: a.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	eg.Go(func() error {
		a.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Close releases the document store and any trace sink.
func (a *app) Close() error {
	errs := []error{a.service.Close()}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
