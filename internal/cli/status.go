package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MimeLyc/transcription-orchestrator/internal/poll"
	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
)

type StatusOptions struct {
	GlobalOptions

	Watch  bool
	Output string
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Output:        "text",
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the status of a transcription job.",
		Args:  cobra.ExactArgs(1),
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

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.BoolVarP(&o.Watch, "watch", "w", o.Watch, "Poll until the job is completed or failed")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format: text or json")
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Output != "text" && o.Output != "json" {
		return fmt.Errorf("unsupported output format %q", o.Output)
	}
	return nil
}

func (o *StatusOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	jobID := args[0]

	if !o.Watch {
		job, err := c.FetchStatus(ctx, jobID)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", jobID, err)
		}
		return o.print(job)
	}

	var last transcript.Status
	scheduler := poll.NewScheduler(c, poll.WithInterval(o.Config.Poll.Interval))
	job, err := scheduler.Watch(ctx, jobID, func(update *transcript.Job) {
		if update.Status != last && !update.Status.Terminal() && o.Output == "text" {
			o.printf("%s %s\n", update.ID, update.Status)
		}
		last = update.Status
	})
	if job != nil {
		if perr := o.print(job); perr != nil {
			return perr
		}
	}
	return err
}

func (o *StatusOptions) print(job *transcript.Job) error {
	if o.Output == "json" {
		data, err := json.MarshalIndent(struct {
			*transcript.Job
			DetectedLanguage string `json:"detected_language,omitempty"`
		}{job, detectedLanguage(job)}, "", "  ")
		if err != nil {
			return err
		}
		o.printf("%s\n", data)
		return nil
	}

	o.printf("%s %s", job.ID, job.Status)
	if job.Filename != "" {
		o.printf(" %s", job.Filename)
	}
	if lang := transcript.EffectiveLanguage(job); lang != "" {
		o.printf(" [%s]", lang)
	}
	o.printf("\n")
	if job.Status == transcript.StatusError && job.Error != "" {
		o.printf("error: %s\n", job.Error)
	}
	if job.Text != "" {
		o.printf("%s\n", job.Text)
	}
	return nil
}

func detectedLanguage(job *transcript.Job) string {
	if job.Language != "" {
		return ""
	}
	return transcript.EffectiveLanguage(job)
}
