package serverrun

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/flagstream/internal/config"
	"github.com/rzbill/flagstream/internal/eventsource"
	"github.com/rzbill/flagstream/internal/runtime"
	grpcserver "github.com/rzbill/flagstream/internal/server/grpc"
	httpserver "github.com/rzbill/flagstream/internal/server/http"
	pebblestore "github.com/rzbill/flagstream/internal/storage/pebble"
	logpkg "github.com/rzbill/flagstream/pkg/log"
)

type Options struct {
	Config  cfgpkg.Config
	Handler eventsource.Handler
	Logger  logpkg.Logger
	Fsync   pebblestore.FsyncMode
	// HTTPClient is used for the stream connection.
	HTTPClient   *http.Client
	OnForeground func()
	// Ready is called once the runtime is open, before the stream starts.
	Ready func(rt *runtime.Runtime)
}

// Run opens the runtime, starts the health and metrics servers when their
// addresses are configured, and holds the session until ctx is cancelled or
// the stream ends with a fatal error.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	cfg := opts.Config
	rt, err := runtime.Open(runtime.Options{
		Config:       cfg,
		Handler:      opts.Handler,
		Logger:       logger,
		Fsync:        opts.Fsync,
		HTTPClient:   opts.HTTPClient,
		OnForeground: opts.OnForeground,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting flagstream session",
		logpkg.Str("url", cfg.URL),
		logpkg.Str("health", cfg.HealthAddr),
		logpkg.Str("metrics", cfg.MetricsAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("stream_key", cfg.StreamKey),
		logpkg.Bool("resume", cfg.Resume),
		logpkg.Int("admission_limit", cfg.AdmissionLimit),
	)

	srvCtx, cancelServers := context.WithCancel(sctx)
	defer cancelServers()

	var wg sync.WaitGroup
	var gsrv *grpcserver.Server
	if cfg.HealthAddr != "" {
		gsrv = grpcserver.New(rt)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.ListenAndServe(srvCtx, cfg.HealthAddr); err != nil && srvCtx.Err() == nil {
				logger.Error("grpc server error", logpkg.Err(err))
			}
		}()
	}
	var hsrv *httpserver.Server
	if cfg.MetricsAddr != "" {
		hsrv = httpserver.New(rt, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(srvCtx, cfg.MetricsAddr); err != nil && srvCtx.Err() == nil {
				logger.Error("http server error", logpkg.Err(err))
			}
		}()
	}

	stopLifecycle := watchLifecycle(sctx, rt, logger)
	defer stopLifecycle()

	if opts.Ready != nil {
		opts.Ready(rt)
	}
	runErr := rt.Run(sctx)

	// Stop the servers before the runtime closes its store.
	cancelServers()
	if gsrv != nil {
		gsrv.Close()
	}
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	if sctx.Err() != nil {
		return nil
	}
	return runErr
}
