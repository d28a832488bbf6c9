package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/session"
	"github.com/54b3r/docchat-go/internal/store"
)

// NewArchiveCmd constructs the `docchat archive` command group, which reads
// and writes the session snapshot archive directly.
func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List, show and import archived session snapshots",
		Long: `Work with the SQLite archive of session snapshots.

The archive lives at DOCCHAT_ARCHIVE_DB (default ~/.docchat/archive.db).
Snapshots are written to it when a session is archived through the API,
or with 'docchat archive import'.`,
	}
	cmd.AddCommand(newArchiveListCmd(), newArchiveShowCmd(), newArchiveImportCmd())
	return cmd
}

// withArchive opens the archive for the duration of fn.
func withArchive(fn func(*store.SQLiteStore) error) error {
	archive, err := openArchive(slog.Default())
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if archive == nil {
		return errors.New("archive: disabled via DOCCHAT_ARCHIVE_DB")
	}
	defer func() { _ = archive.Close() }()
	return fn(archive)
}

func newArchiveListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withArchive(func(archive *store.SQLiteStore) error {
				entries, err := archive.List(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("archive: %w", err)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "archive is empty")
					return nil
				}

				t := table.New().
					Border(lipgloss.NormalBorder()).
					Headers("ID", "NAME", "DOCUMENT", "MESSAGES", "ARCHIVED")
				for _, e := range entries {
					t.Row(
						strconv.FormatInt(e.ID, 10),
						e.Name,
						e.DocumentName,
						strconv.Itoa(e.Messages),
						e.ArchivedAt.Local().Format(time.DateTime),
					)
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Render())
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	return cmd
}

func newArchiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an archived snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("archive: invalid id %q", args[0])
			}
			return withArchive(func(archive *store.SQLiteStore) error {
				rec, err := archive.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("archive: %w", err)
				}
				var buf bytes.Buffer
				if err := json.Indent(&buf, rec.Payload, "", "  "); err != nil {
					return fmt.Errorf("archive: %w", err)
				}
				buf.WriteByte('\n')
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			})
		},
	}
}

func newArchiveImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Archive a session export file",
		Long: `Validate a session export (as produced by GET /api/sessions/{id}/export)
and store it in the archive. Message entries that fail validation are
skipped and counted, as on the import endpoint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("archive: %w", err)
			}

			// Parse through a scratch registry so the archived payload is
			// the normalised export format.
			reg := session.NewRegistry()
			sess, result, err := reg.Import(data)
			if err != nil {
				return fmt.Errorf("archive: %w", err)
			}
			snap, err := reg.Export(sess.ID())
			if err != nil {
				return fmt.Errorf("archive: %w", err)
			}

			return withArchive(func(archive *store.SQLiteStore) error {
				entry, err := archive.Save(cmd.Context(), snap)
				if err != nil {
					return fmt.Errorf("archive: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archived %q as #%d (%d messages imported, %d skipped)\n",
					entry.Name, entry.ID, result.Imported, result.Skipped)
				return nil
			})
		},
	}
}
