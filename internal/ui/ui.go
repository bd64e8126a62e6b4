// Package ui shows each citation command of a revision next to the text it
// was rewritten to, either as an interactive list or as plain text.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gubarz/latexdiffcite/internal/config"
	"github.com/gubarz/latexdiffcite/internal/revision"
)

// Entry is one rewritten citation command
type Entry struct {
	Revision     string
	Command      string
	Output       string
	Keys         []string
	Refs         []string
	NotesDropped bool
}

// EntriesFromState lists the rewritten commands of a processed revision
func EntriesFromState(s *revision.State, cfg *config.Config) []Entry {
	entries := make([]Entry, 0, len(s.Rendered))
	for _, r := range s.Rendered {
		inv := r.Invocation
		f := cfg.CmdFormat[inv.Command]

		refs := make([]string, 0, len(inv.Keys))
		for _, key := range inv.Keys {
			refs = append(refs, describeRef(s, key))
		}
		entries = append(entries, Entry{
			Revision:     s.Name.String(),
			Command:      inv.Text,
			Output:       r.Output,
			Keys:         inv.Keys,
			Refs:         refs,
			NotesDropped: (inv.Prenote != "" || inv.Postnote != "") && !f.AllowNotes,
		})
	}
	return entries
}

func describeRef(s *revision.State, key string) string {
	var parts []string
	if ref, ok := s.Reference(key); ok && (ref.Author != "" || ref.Year != "") {
		parts = append(parts, fmt.Sprintf("%s (%s)", ref.Author, ref.Year))
	}
	if groups := s.CaptureGroups(key); len(groups) > 0 {
		parts = append(parts, fmt.Sprintf("groups %q", groups))
	}
	parts = append(parts, fmt.Sprintf("#%d", s.Position(key)))
	return key + ": " + strings.Join(parts, ", ")
}

// PrintPlain writes every entry as a command line followed by its rendering
func PrintPlain(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		cmd := strings.Join(strings.Fields(e.Command), " ")
		if _, err := fmt.Fprintf(w, "[%s] %s\n    -> %s\n", e.Revision, cmd, e.Output); err != nil {
			return err
		}
		if e.NotesDropped {
			if _, err := fmt.Fprintln(w, "    (notes ignored)"); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================================
// Run TUI
// ============================================================================

// getTTY returns file handles for TUI input/output
// Uses /dev/tty to bypass shell pipes and command substitution
func getTTY() (in *os.File, out *os.File, cleanup func()) {
	var closers []func()

	if fileInfo, _ := os.Stdout.Stat(); (fileInfo.Mode() & os.ModeCharDevice) == 0 {
		out, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
		if err != nil {
			out = os.Stderr
		} else {
			closers = append(closers, func() { out.Close() })
		}

		in, err := os.OpenFile("/dev/tty", os.O_RDONLY, 0)
		if err != nil {
			in = os.Stdin
		} else {
			closers = append(closers, func() { in.Close() })
		}

		// Tell lipgloss to use the TTY for color detection
		lipgloss.SetDefaultRenderer(lipgloss.NewRenderer(out))

		return in, out, func() {
			for _, c := range closers {
				c()
			}
		}
	}

	return os.Stdin, os.Stdout, func() {}
}

// Run launches the interactive preview
func Run(entries []Entry, title string) error {
	if len(entries) == 0 {
		return fmt.Errorf("no citation commands found")
	}

	ttyIn, ttyOut, cleanup := getTTY()
	defer cleanup()

	p := tea.NewProgram(newPreviewModel(entries, title), tea.WithAltScreen(), tea.WithOutput(ttyOut), tea.WithInput(ttyIn))
	_, err := p.Run()
	return err
}
