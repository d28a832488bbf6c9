package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// NewIngestCmd constructs the `docchat ingest` command, which runs the
// upload pipeline on a local file and reports what an upload would index.
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk and embed a document and report the resulting index",
		Long: `Run the upload pipeline on a local file: extract its text, split it into
overlapping chunks, embed every chunk and build an in-memory index.

Useful to check extraction, chunking and the embedding backend before
uploading the file through the server.

Examples:
  docchat ingest handbook.pdf
  INGEST_CHUNK_SIZE=500 INGEST_CHUNK_OVERLAP=50 docchat ingest notes.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline, emb, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			res, err := pipeline.Run(ctx, raw, filepath.Base(args[0]), func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer res.Index.Clear()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "document:  %s\n", res.Document.Name)
			fmt.Fprintf(out, "chunks:    %d\n", res.Index.Size())
			fmt.Fprintf(out, "backend:   %s\n", res.Index.Backend())
			fmt.Fprintf(out, "dimension: %d\n", res.Index.Dimension())
			fmt.Fprintf(out, "model:     %s\n", res.Model)
			if emb.Degraded() {
				fmt.Fprintln(out, "degraded:  true (fallback embedder in use)")
			}
			fmt.Fprintf(out, "elapsed:   %s\n", res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}
