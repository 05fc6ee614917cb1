// Package cli implements the meetcore command line
package cli

import (
	"github.com/spf13/cobra"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/version"
)

type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetcore",
		Short:         "Real-time meeting coordination server",
		Long:          "Runs the meeting signaling relay and transcription backend, or streams transcript lines to a running server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewTranscribeCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
