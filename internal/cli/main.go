package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "clipscout",
		Short:        "Find, rank and store short-form clip candidates in long transcripts",
		SilenceUsage: true,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.AddCommand(
		newGenerateCmd(),
		newTranscribeCmd(),
		newSourcesCmd(),
		newProfilesCmd(),
		newClipsCmd(),
		newReconcileCmd(),
		newMigrateCmd(),
		newServeCmd(),
	)
	return root
}
