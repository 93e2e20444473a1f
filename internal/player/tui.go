package player

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(10)
	nameStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	reprStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is a bubbletea model stepping through entries one at a time.
type Model struct {
	entries  []Entry
	cursor   int
	width    int
	finished bool
}

// NewModel returns a Model positioned on the first entry.
func NewModel(entries []Entry) Model {
	return Model{entries: entries, width: 80}
}

// Cursor returns the index of the shown entry.
func (m Model) Cursor() int { return m.cursor }

// Finished reports whether the user quit.
func (m Model) Finished() bool { return m.finished }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.finished = true
			return m, tea.Quit
		case "n", "j", "down", "right", " ", "enter":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "p", "k", "up", "left":
			if m.cursor > 0 {
				m.cursor--
			}
		case "g", "home":
			m.cursor = 0
		case "G", "end":
			if len(m.entries) > 0 {
				m.cursor = len(m.entries) - 1
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.finished {
		return "finished\n"
	}
	if len(m.entries) == 0 {
		return titleStyle.Render("empty cassette") + "\n" + helpStyle.Render("q quit") + "\n"
	}

	e := m.entries[m.cursor]
	reprWidth := m.width - 12
	if reprWidth < 10 {
		reprWidth = 10
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("record %d/%d", m.cursor+1, len(m.entries))))
	b.WriteString("\n\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}
	row("seq", strconv.FormatInt(e.Seq, 10))
	row("location", e.Location())
	row("event", e.Type.String())
	row("name", nameStyle.Render(e.Name))
	if e.DeclLine > 0 {
		row("declared", strconv.Itoa(e.DeclLine))
	}
	row("type", e.Value.Type)
	row("id", strconv.FormatUint(e.Value.ID, 10))
	row("repr", reprStyle.Render(runewidth.Truncate(e.Value.Repr, reprWidth, "…")))
	b.WriteByte('\n')
	b.WriteString(helpStyle.Render("n next  p prev  g first  G last  q quit"))
	b.WriteByte('\n')
	return b.String()
}

// RunTUI shows entries interactively until the user quits.
func RunTUI(entries []Entry, in io.Reader, out io.Writer) error {
	prog := tea.NewProgram(NewModel(entries), tea.WithInput(in), tea.WithOutput(out))
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("player: tui: %w", err)
	}
	return nil
}
