package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ============================================================================
// Debounce
// ============================================================================

// filterMsg triggers filtering after debounce
type filterMsg struct{}

// debounceFilter returns a command that triggers filtering after a delay
func debounceFilter() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return filterMsg{}
	})
}

// ============================================================================
// Preview Model
// ============================================================================

// previewModel lists rewritten citations with a filter box and a detail pane
type previewModel struct {
	width     int
	height    int
	title     string
	textInput textinput.Model
	detail    viewport.Model
	quitting  bool

	entries  []Entry
	filtered []Entry
	cursor   int
	offset   int
}

func newPreviewModel(entries []Entry, title string) previewModel {
	ti := textinput.New()
	ti.Placeholder = "Type to filter by command, key or output..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	m := previewModel{
		title:     title,
		textInput: ti,
		detail:    viewport.New(80, 8),
		entries:   entries,
		filtered:  entries,
	}
	m.syncDetail()
	return m
}

// Init implements tea.Model
func (m previewModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (m previewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 4
		m.detail.Width = msg.Width
		m.detail.Height = m.detailHeight()
		m.syncDetail()
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	case filterMsg:
		m.filterEntries()
		return m, nil
	}

	prevQuery := m.textInput.Value()
	var tiCmd tea.Cmd
	m.textInput, tiCmd = m.textInput.Update(msg)
	cmds = append(cmds, tiCmd)

	if m.textInput.Value() != prevQuery {
		cmds = append(cmds, debounceFilter())
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes navigation keys. Unhandled keys go to the filter box.
func (m *previewModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return tea.Quit, true
	case "up", "ctrl+p":
		m.moveCursor(-1)
	case "down", "ctrl+n":
		m.moveCursor(1)
	case "pgup":
		m.moveCursor(-10)
	case "pgdown":
		m.moveCursor(10)
	case "home", "ctrl+a":
		m.moveCursor(-len(m.filtered))
	case "end", "ctrl+e":
		m.moveCursor(len(m.filtered))
	case "ctrl+u":
		m.detail.HalfViewUp()
	case "ctrl+d":
		m.detail.HalfViewDown()
	default:
		return nil, false
	}
	return nil, true
}

// moveCursor moves the cursor by delta, clamping to valid range
func (m *previewModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(0, len(m.filtered)-1))
	m.adjustOffset()
	m.syncDetail()
}

// adjustOffset ensures cursor is visible within the list
func (m *previewModel) adjustOffset() {
	height := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
	m.offset = clamp(m.offset, 0, max(0, len(m.filtered)-height))
}

// filterEntries keeps entries matching every word of the query
func (m *previewModel) filterEntries() {
	words := strings.Fields(strings.ToLower(m.textInput.Value()))
	if len(words) == 0 {
		m.filtered = m.entries
	} else {
		m.filtered = make([]Entry, 0, len(m.entries))
		for _, e := range m.entries {
			if matchesAllWords(e, words) {
				m.filtered = append(m.filtered, e)
			}
		}
	}
	m.cursor = clamp(m.cursor, 0, max(0, len(m.filtered)-1))
	m.adjustOffset()
	m.syncDetail()
}

// matchesAllWords reports whether every word occurs in the entry (case-insensitive)
func matchesAllWords(e Entry, words []string) bool {
	text := strings.ToLower(e.Revision + "\n" + e.Command + "\n" + e.Output + "\n" + strings.Join(e.Keys, "\n"))
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// syncDetail shows the selected entry in the detail pane
func (m *previewModel) syncDetail() {
	if m.cursor >= len(m.filtered) {
		m.detail.SetContent(styles.Dim.Render("no matching citations"))
		return
	}
	m.detail.SetContent(renderDetail(m.filtered[m.cursor]))
	m.detail.GotoTop()
}

// ============================================================================
// Layout
// ============================================================================

const (
	inputLines   = 3 // divider + info + input
	dividerLines = 1
)

func (m previewModel) listHeight() int {
	height := max(m.height, 24)
	return max((height-inputLines-dividerLines)/2, 3)
}

func (m previewModel) detailHeight() int {
	height := max(m.height, 24)
	return max(height-inputLines-dividerLines-m.listHeight(), 3)
}

// ============================================================================
// Rendering
// ============================================================================

// View implements tea.Model
func (m previewModel) View() string {
	if m.quitting {
		return ""
	}
	width := max(m.width, 80)

	var b strings.Builder
	list := m.renderList(m.listHeight())
	b.WriteString(list)
	b.WriteString(strings.Repeat("\n", max(m.listHeight()-countLines(list), 0)))
	b.WriteString(styles.Divider.Render(strings.Repeat("─", width)))
	b.WriteString("\n")
	b.WriteString(m.detail.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput(width))
	return b.String()
}

// renderList renders the visible part of the filtered entries
func (m previewModel) renderList(height int) string {
	if len(m.filtered) == 0 {
		return ""
	}
	start := m.offset
	end := min(start+height, len(m.filtered))

	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(m.renderListItem(m.filtered[i], i == m.cursor))
		b.WriteString("\n")
	}
	return b.String()
}

// renderListItem renders one command and its rendering on a single line
func (m previewModel) renderListItem(e Entry, selected bool) string {
	cmdStyle, outStyle, dimStyle := styles.Command, styles.Output, styles.Dim
	if selected {
		cmdStyle = styles.WithSelection(cmdStyle)
		outStyle = styles.WithSelection(outStyle)
		dimStyle = styles.WithSelection(dimStyle)
	}

	width := max(m.width, 80)
	half := max((width-10)/2, 10)
	cmd := truncateString(oneLine(e.Command), half)
	out := truncateString(oneLine(e.Output), half)

	line := dimStyle.Render(fmt.Sprintf("%-3s ", e.Revision)) + cmdStyle.Render(cmd) + dimStyle.Render(" → ") + outStyle.Render(out)
	if selected {
		return styles.Cursor.Render("▶ ") + line
	}
	return "  " + line
}

// renderDetail renders the full command, rendering and resolved references
func renderDetail(e Entry) string {
	var b strings.Builder
	b.WriteString(styles.DetailHeader.Render(e.Revision + " revision"))
	b.WriteString("\n")
	b.WriteString(styles.Command.Render(e.Command))
	b.WriteString("\n")
	b.WriteString(styles.Output.Render(e.Output))
	b.WriteString("\n")
	if e.NotesDropped {
		b.WriteString(styles.Warning.Render("prenote/postnote not supported for this command, ignored"))
		b.WriteString("\n")
	}
	for _, ref := range e.Refs {
		b.WriteString(styles.DetailKey.Render("  " + ref))
		b.WriteString("\n")
	}
	return b.String()
}

// renderInput renders the input section at the bottom
func (m previewModel) renderInput(width int) string {
	var b strings.Builder
	b.WriteString(styles.Divider.Render(strings.Repeat("─", width)))
	b.WriteString("\n")
	b.WriteString(styles.Dim.Render(fmt.Sprintf("  %s %d/%d", m.title, len(m.filtered), len(m.entries))))
	b.WriteString(" • ")
	b.WriteString(styles.Dim.Render("Ctrl+U/D scroll"))
	b.WriteString(" • ")
	b.WriteString(styles.Dim.Render("ESC exit"))
	b.WriteString("\n")
	b.WriteString(m.textInput.View())
	return b.String()
}

// ============================================================================
// Helpers
// ============================================================================

// clamp restricts v to [minV, maxV]
func clamp(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// countLines counts the number of lines in a string
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}

// truncateString truncates a string to maxLen runes with ellipsis
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 3 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// oneLine collapses whitespace so multi-line commands fit a list row
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
