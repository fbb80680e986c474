// Package cli holds the cobra commands of the transcribe binary.
package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MimeLyc/transcription-orchestrator/internal/config"
	"github.com/MimeLyc/transcription-orchestrator/internal/jobs"
	"github.com/MimeLyc/transcription-orchestrator/internal/poll"
	"github.com/MimeLyc/transcription-orchestrator/internal/transport"
	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

type GlobalOptions struct {
	ServiceURL string
	LogLevel   string

	Config *config.Config
	out    io.Writer
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServiceURL, "service-url", "u", o.ServiceURL, "Base URL of the transcription service (overrides TRANSCRIBE_SERVICE_URL)")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
}

// Complete loads configuration. Precedence, lowest first: environment and
// dotenv file, runtime settings file, flags.
func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	o.out = &syncWriter{w: cmd.OutOrStdout()}

	base, err := config.NewFromEnv(config.WithServiceURL(o.ServiceURL))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	cfg := base
	settingsPath := base.Transcribe.SettingsFile
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		cfg, err = config.NewFromEnv(config.WithRuntimeSettings(settings), config.WithServiceURL(o.ServiceURL))
		if err != nil {
			return fmt.Errorf("applying %s: %w", settingsPath, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("loading %s: %w", settingsPath, err)
	}
	o.Config = cfg

	level := cfg.Log.Level
	if o.LogLevel != "" {
		level = o.LogLevel
	}
	log.GetLogger().SetLevel(log.ParseLevel(level))
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

func (o *GlobalOptions) Client() (*transport.Client, error) {
	return transport.NewClient(transport.Config{
		BaseURL: o.Config.Service.URL,
		Timeout: o.Config.Service.Timeout,
	})
}

// NewStore wires a job store to client with the configured poll interval.
func (o *GlobalOptions) NewStore(client *transport.Client) *jobs.Store {
	scheduler := poll.NewScheduler(client, poll.WithInterval(o.Config.Poll.Interval))
	return jobs.NewStore(client, scheduler)
}

func (o *GlobalOptions) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.out, format, args...)
}

// syncWriter serializes writes from concurrent uploads.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
