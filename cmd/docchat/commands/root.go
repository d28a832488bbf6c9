// Package commands defines all Cobra CLI commands for the docchat binary.
package commands

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/audit"
	"github.com/54b3r/docchat-go/internal/config"
	"github.com/54b3r/docchat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docchat",
		Short: "Chat with a language model about your documents",
		Long: `docchat streams answers from a language model, grounded in a document
you upload to the conversation.

Upload a PDF, DOCX or text file to a session and every question in that
session is answered with the most relevant passages of the document.

The chat backend is selected via MODEL_PROVIDER, the embedding backend via
EMBEDDING_PROVIDER. Both can also be set in a YAML config file
(~/.docchat/config.yaml). A .env file in the working directory is loaded
first and never overrides variables that are already set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docchat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewArchiveCmd(),
		NewVersionCmd(),
	)

	return root
}
