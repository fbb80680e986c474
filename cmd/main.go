package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/transcription-orchestrator/internal/cli"
)

func main() {
	command := NewTranscribeCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewTranscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe [command] [flags]",
		Short: "transcribe submits audio to a transcription service and tracks the jobs.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdServe())
	cmd.AddCommand(cli.NewCmdSubmit())
	cmd.AddCommand(cli.NewCmdStatus())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdHealth())

	return cmd
}
