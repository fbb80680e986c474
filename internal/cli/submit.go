package cli

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/transcription-orchestrator/internal/jobs"
	"github.com/MimeLyc/transcription-orchestrator/internal/transcript"
	"github.com/MimeLyc/transcription-orchestrator/pkg/file"
)

type SubmitOptions struct {
	GlobalOptions

	Language    string
	Dir         string
	Since       time.Duration
	Save        bool
	NoWait      bool
	Concurrency int

	files []string
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Since:         24 * time.Hour,
		Concurrency:   2,
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:   "submit [FILE...]",
		Short: "Upload audio files and wait for their transcripts.",
		Example: "  transcribe submit talk.mp3 interview.wav --language en --save\n" +
			"  transcribe submit --dir ./recordings --since 2h",
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

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Language, "language", "l", o.Language, "Language hint such as en or pt-BR (defaults to TRANSCRIBE_LANGUAGE)")
	fs.StringVar(&o.Dir, "dir", o.Dir, "Also submit supported files under this directory")
	fs.DurationVar(&o.Since, "since", o.Since, "With --dir, only files modified within this window")
	fs.BoolVar(&o.Save, "save", o.Save, "Write each transcript next to its audio file as .txt")
	fs.BoolVar(&o.NoWait, "no-wait", o.NoWait, "Return once files are accepted instead of waiting for transcripts")
	fs.IntVarP(&o.Concurrency, "concurrency", "c", o.Concurrency, "Number of parallel uploads")
}

func (o *SubmitOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	if o.Language == "" {
		o.Language = o.Config.Transcribe.DefaultLanguage
	}

	o.files = append([]string(nil), args...)
	if o.Dir != "" {
		found, err := file.FindRecentAfter(o.Dir, time.Now().Add(-o.Since), transcript.IsSupportedFile)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", o.Dir, err)
		}
		o.files = append(o.files, found...)
	}
	return nil
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.files) == 0 {
		return fmt.Errorf("no files to submit")
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}
	if o.Save && o.NoWait {
		return fmt.Errorf("--save needs the transcript, drop --no-wait")
	}
	for _, path := range o.files {
		if err := transcript.ValidateFilename(path); err != nil {
			return err
		}
	}
	if _, err := transcript.NormalizeLanguage(o.Language); err != nil {
		return err
	}
	return nil
}

func (o *SubmitOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	store := o.NewStore(c)
	defer store.Close()

	_, unsubscribe := store.Subscribe(o.progressPrinter())
	defer unsubscribe()

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(o.Concurrency)
	for _, path := range o.files {
		g.Go(func() error {
			if err := o.submitOne(ctx, store, path); err != nil {
				failed.Add(1)
				o.printf("%s: %v\n", path, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(o.files))
	}
	return nil
}

func (o *SubmitOptions) submitOne(ctx context.Context, store *jobs.Store, path string) error {
	upload, f, err := transcript.OpenUpload(path)
	if err != nil {
		return err
	}
	defer f.Close()

	job, err := store.UploadFile(ctx, upload, o.Language)
	if err != nil {
		return err
	}
	o.printf("%s: accepted as %s (%s)\n", path, job.ID, job.Status)
	if o.NoWait {
		return nil
	}

	final, err := store.Await(ctx, job.ID)
	if err != nil {
		return err
	}
	o.printf("%s: %s %s [%s]\n", path, final.ID, final.Status, transcript.EffectiveLanguage(final))

	if o.Save {
		out := file.ReplaceExt(path, ".txt")
		if err := os.WriteFile(out, []byte(final.Text+"\n"), 0o644); err != nil {
			return fmt.Errorf("saving transcript: %w", err)
		}
		o.printf("%s: transcript written to %s\n", path, out)
	}
	return nil
}

// progressPrinter reports upload progress in steps of ten percent.
func (o *SubmitOptions) progressPrinter() func(jobs.State) {
	printed := make(map[string]int)
	return func(st jobs.State) {
		for _, u := range st.Uploads {
			last, seen := printed[u.ID]
			if seen && u.Progress < 100 && u.Progress-last < 10 {
				continue
			}
			if seen && u.Progress == last {
				continue
			}
			printed[u.ID] = u.Progress
			o.printf("%s: uploading %d%%\n", u.Filename, u.Progress)
		}
	}
}
