package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MimeLyc/transcription-orchestrator/internal/health"
)

type HealthOptions struct {
	GlobalOptions

	Wait     time.Duration
	Interval time.Duration
}

func DefaultHealthOptions() *HealthOptions {
	return &HealthOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      2 * time.Second,
	}
}

func NewCmdHealth() *cobra.Command {
	o := DefaultHealthOptions()
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the transcription service is up and its model is loaded.",
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

func (o *HealthOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.DurationVar(&o.Wait, "wait", o.Wait, "Keep probing up to this long until the model is loaded")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Delay between probes with --wait")
}

func (o *HealthOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	monitor, err := health.NewMonitor(c, o.Config.Health.CronExpr, o.Config.Service.Timeout)
	if err != nil {
		return err
	}

	var report health.Report
	if o.Wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, o.Wait)
		defer cancel()
		report, _ = monitor.WaitReady(waitCtx, o.Interval)
	} else {
		report = monitor.Check(ctx)
	}
	report.Schedule = nil

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	o.printf("%s\n", data)

	if !report.Ready() {
		return fmt.Errorf("service not ready: %s", report.Status)
	}
	return nil
}
