package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/logging"
)

var (
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	labelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// NewAskCmd constructs the `docchat ask` command, which sends one question
// to the model and streams the answer to stdout.
func NewAskCmd() *cobra.Command {
	var doc string
	var params chat.Params
	var threshold float32

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question, optionally about a document",
		Long: `Ask the model a question and stream the answer to the terminal.

With --doc the file is chunked, embedded and searched first, and the most
relevant passages are given to the model as context. Reasoning from
thinking models is shown dimmed above the answer.

Examples:
  docchat ask "what is retrieval augmented generation?"
  docchat ask --doc handbook.pdf "how many vacation days do I get?"
  docchat ask --doc notes.docx --top-k 5 "summarise the action items"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()
			ctx = logging.WithLogger(ctx, log)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			sessionID := st.engine.Sessions.Current().ID()
			if cmd.Flags().Changed("threshold") {
				params.Threshold = &threshold
			}

			if doc != "" {
				raw, err := os.ReadFile(doc)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				res, err := st.engine.UploadDocument(ctx, sessionID, raw, filepath.Base(doc), func(msg string) {
					log.Debug(msg)
				})
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				log.Info("document indexed", slog.String("document", res.Document.Name), slog.Int("chunks", res.Index.Size()))
			}

			turn, err := st.engine.Send(ctx, sessionID, strings.Join(args, " "), params)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			return renderTurn(cmd.OutOrStdout(), turn)
		},
	}

	cmd.Flags().StringVarP(&doc, "doc", "d", "", "Document to answer from (pdf, docx or text)")
	cmd.Flags().StringVar(&params.Model, "model", "", "Override the configured model")
	cmd.Flags().StringVar(&params.SystemPrompt, "system", "", "Override the system prompt")
	cmd.Flags().IntVar(&params.TopK, "top-k", 0, "Passages to retrieve from the document")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "Minimum passage similarity (-1 keeps every passage)")

	return cmd
}

// renderTurn streams a turn to w: reasoning dimmed, then the answer.
func renderTurn(w io.Writer, turn *chat.Turn) error {
	defer turn.Close()

	inReasoning := false
	answered := false
	for d := range turn.Deltas() {
		if d.Err != nil {
			fmt.Fprintln(w)
			return fmt.Errorf("ask: %w", d.Err)
		}
		if d.Reasoning != "" {
			if !inReasoning {
				fmt.Fprintln(w, labelStyle.Render("Thinking"))
				inReasoning = true
			}
			fmt.Fprint(w, dim(d.Reasoning))
		}
		if d.Content != "" {
			if !answered && inReasoning {
				fmt.Fprintf(w, "\n\n%s\n", labelStyle.Render("Answer"))
			}
			answered = true
			fmt.Fprint(w, d.Content)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// dim styles s line by line so streamed fragments keep their newlines.
func dim(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = reasoningStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
