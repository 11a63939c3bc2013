package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/inkwell/internal/diff"
	"github.com/dshills/inkwell/internal/store"
)

// diffStyles render span kinds.
type diffStyles struct {
	equal   lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
	stats   lipgloss.Style
}

func defaultDiffStyles() diffStyles {
	return diffStyles{
		equal:   lipgloss.NewStyle(),
		added:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Underline(true),
		removed: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Strikethrough(true),
		stats:   lipgloss.NewStyle().Faint(true),
	}
}

func newDiffCmd() *cobra.Command {
	var (
		plain bool
		stats bool
	)

	cmd := &cobra.Command{
		Use:   "diff <original> <current>",
		Short: "Show a character diff of two files",
		Long: `Show a character level diff of two files the way suggestion review
highlights it. Removed text is struck through in red and added text is
underlined in green. With --plain, changes are marked [-removed-] and
{+added+} instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := readText(args[0])
			if err != nil {
				return err
			}
			current, err := readText(args[1])
			if err != nil {
				return err
			}

			res, err := diff.Compute(original, current)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			out := cmd.OutOrStdout()
			if plain {
				fmt.Fprintln(out, renderPlain(res.Spans))
			} else {
				fmt.Fprintln(out, renderStyled(res.Spans, defaultDiffStyles()))
			}
			if stats {
				st := res.Stats()
				line := fmt.Sprintf("%d added, %d removed, %d unchanged", st.Added, st.Removed, st.Equal)
				fmt.Fprintln(out, defaultDiffStyles().stats.Render(line))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Mark changes with [-removed-] and {+added+}")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print character counts")
	return cmd
}

// readText reads a file the way the store does: BOM stripped, line endings
// normalized to LF.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if store.IsBinary(data) {
		return "", fmt.Errorf("%s: %w", path, store.ErrBinaryFile)
	}
	data, _ = store.StripBOM(data)
	return string(store.NormalizeLineEndings(data, store.LineEndingLF)), nil
}

func renderStyled(spans []diff.Span, st diffStyles) string {
	var b strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case diff.Added:
			b.WriteString(st.added.Render(s.Text))
		case diff.Removed:
			b.WriteString(st.removed.Render(s.Text))
		default:
			b.WriteString(st.equal.Render(s.Text))
		}
	}
	return b.String()
}

func renderPlain(spans []diff.Span) string {
	var b strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case diff.Added:
			b.WriteString("{+" + s.Text + "+}")
		case diff.Removed:
			b.WriteString("[-" + s.Text + "-]")
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
