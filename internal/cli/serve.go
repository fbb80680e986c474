package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/transcription-orchestrator/internal/config"
	"github.com/MimeLyc/transcription-orchestrator/internal/health"
	"github.com/MimeLyc/transcription-orchestrator/internal/httpapi"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

const shutdownTimeout = 5 * time.Second

type ServeOptions struct {
	GlobalOptions

	Addr string
}

func DefaultServeOptions() *ServeOptions {
	return &ServeOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdServe() *cobra.Command {
	o := DefaultServeOptions()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API and the scheduled health probe.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ServeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.Addr, "addr", o.Addr, "Listen address (overrides HTTP_ADDR)")
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	if o.Addr != "" {
		o.Config.HTTP.Addr = o.Addr
	}
	return nil
}

func (o *ServeOptions) Run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := o.Config
	if cfg.Log.File != "" {
		fl, err := log.NewFileLogger(cfg.Log.File, log.GetLogger().Level())
		if err != nil {
			return err
		}
		prev := log.GetLogger()
		log.SetLogger(fl.Logger)
		defer func() {
			log.SetLogger(prev)
			_ = fl.Close()
		}()
	}

	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	store := o.NewStore(c)
	defer store.Close()

	monitor, err := health.NewMonitor(c, cfg.Health.CronExpr, cfg.Service.Timeout)
	if err != nil {
		return err
	}
	settings, err := config.NewRuntimeSettingsStore(cfg.Transcribe.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(store,
		httpapi.WithHealth(monitor),
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithDefaultLanguage(cfg.Transcribe.DefaultLanguage),
		httpapi.WithUI(cfg.HTTP.UIStaticDir),
	)
	return runWithComponents(ctx, cfg, monitor, cron.New(), srv)
}

type healthProber interface {
	Schedule(ctx context.Context, s health.Scheduler) error
	Check(ctx context.Context) health.Report
}

type cronEngine interface {
	health.Scheduler
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// runWithComponents serves HTTP and runs the health cron until ctx is done
// or the listener fails.
func runWithComponents(ctx context.Context, cfg *config.Config, prober healthProber, cronEngine cronEngine, httpSrv httpServer) error {
	if err := prober.Schedule(ctx, cronEngine); err != nil {
		return fmt.Errorf("scheduling health probe: %w", err)
	}
	cronEngine.Start()
	defer func() {
		select {
		case <-cronEngine.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Health probe still running at shutdown")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report := prober.Check(gctx)
		log.Info("Transcription service at %s: status=%s model_loaded=%t", cfg.Service.URL, report.Status, report.ModelLoaded)
		return nil
	})
	g.Go(func() error {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down HTTP API")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
