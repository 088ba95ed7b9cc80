package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"book-rag/internal/models"
	"book-rag/internal/rag"

	"github.com/spf13/cobra"
)

func askCMD(load loadFunc) *cobra.Command {
	var query, selected string
	var interactive bool

	var ask = &cobra.Command{
		Use:   "ask",
		Short: "Ask the book a question from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive && query == "" {
				return fmt.Errorf("query is required in non-interactive mode, use -q 'your question'")
			}
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if interactive {
				return runInteractiveMode(cmd.Context(), a.service, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Book.Subject)
			}
			resp, err := a.service.Chat(cmd.Context(), models.Turn{Message: query, SelectedText: selected})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAnswer(resp))
			return nil
		},
	}
	ask.Flags().StringVarP(&query, "query", "q", "", "question to answer (non-interactive mode)")
	ask.Flags().StringVar(&selected, "selected", "", "answer from this passage instead of the index")
	ask.Flags().BoolVarP(&interactive, "interactive", "i", false, "run in interactive mode")

	return ask
}

// chatter is the part of the service the terminal loop needs
type chatter interface {
	Chat(ctx context.Context, turn models.Turn) (rag.ChatResponse, error)
}

// runInteractiveMode reads questions line by line. "/select <text>" sets a
// passage for the following questions and "/select" alone clears it.
func runInteractiveMode(ctx context.Context, svc chatter, in io.Reader, out io.Writer, subject string) error {
	scanner := bufio.NewScanner(in)
	var sessionID, selected string

	fmt.Fprintf(out, "%s assistant - ask questions about the book (type 'exit' to quit)\n", subject)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			break
		}
		if input == "" {
			continue
		}

		if input == "/select" || strings.HasPrefix(input, "/select ") {
			selected = strings.TrimSpace(strings.TrimPrefix(input, "/select"))
			if selected == "" {
				fmt.Fprintln(out, "Selection cleared")
			} else {
				fmt.Fprintln(out, "Selection set, questions will be answered from it")
			}
			continue
		}

		resp, err := svc.Chat(ctx, models.Turn{Message: input, SelectedText: selected, SessionID: sessionID})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		sessionID = resp.SessionID

		fmt.Fprintln(out, formatAnswer(resp))
	}
	return scanner.Err()
}

func formatAnswer(resp rag.ChatResponse) string {
	var sb strings.Builder

	sb.WriteString(resp.Text)
	sb.WriteString("\n")

	if len(resp.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for i, source := range resp.Sources {
			fmt.Fprintf(&sb, "  %d. [Section: %s, File: %s, Score: %.2f]\n",
				i+1, source.Section, source.FilePath, source.RelevanceScore)
		}
	}

	return sb.String()
}
