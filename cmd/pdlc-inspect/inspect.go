package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/layout"
	"github.com/pdlc-project/pdlc/internal/model"
	"github.com/pdlc-project/pdlc/internal/parser"
	"github.com/pdlc-project/pdlc/internal/resolve"
	"github.com/pdlc-project/pdlc/internal/token"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectModel struct {
	filename  string
	err       error
	file      *model.File
	calc      *layout.Calculator
	cirb      *cir.Builder
	names     []string
	visible   []string
	selected  int
	detail    detailView
	filter    textinput.Model
	filtering bool
}

type detailView int

const (
	viewList detailView = iota
	viewLayout
	viewParse
	viewSerialize
)

func newInspectModel(filename string) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "filter by name"
	ti.Prompt = "/ "
	ti.Width = 32
	return &inspectModel{filename: filename, filter: ti}
}

type loadedMsg struct {
	err   error
	file  *model.File
	names []string
}

func (m *inspectModel) Init() tea.Cmd {
	return m.load
}

func (m *inspectModel) load() tea.Msg {
	src, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	astFile, err := parser.New(token.Tokenize(string(src)), m.filename).Parse()
	if err != nil {
		return loadedMsg{err: err}
	}

	f, err := resolve.New(astFile).Resolve()
	if err != nil {
		return loadedMsg{err: err}
	}

	return loadedMsg{file: f, names: f.Order}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.file = msg.file
		m.names = msg.names
		m.visible = msg.names
		m.calc = layout.NewCalculator()
		m.cirb = cir.NewBuilder()

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.filter.Blur()
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				m.applyFilter()
				return m, cmd
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if m.detail != viewList {
				m.detail = viewList
				return m, nil
			}
			return m, tea.Quit

		case "/":
			if m.detail == viewList {
				m.filtering = true
				return m, m.filter.Focus()
			}

		case "up", "k":
			if m.detail == viewList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.detail == viewList && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "enter":
			if m.detail == viewList && len(m.visible) > 0 {
				m.detail = viewLayout
			}

		case "tab":
			if m.detail != viewList {
				m.detail = nextDetail(m.detail)
			}

		case "esc":
			if m.filter.Value() != "" {
				m.filter.SetValue("")
				m.applyFilter()
			}
			m.detail = viewList
		}
	}
	return m, nil
}

// applyFilter recomputes the visible declaration list from the filter
// input's current value and clamps selection to stay in range.
func (m *inspectModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	if q == "" {
		m.visible = m.names
	} else {
		visible := make([]string, 0, len(m.names))
		for _, name := range m.names {
			if strings.Contains(strings.ToLower(name), q) {
				visible = append(visible, name)
			}
		}
		m.visible = visible
	}
	if m.selected >= len(m.visible) {
		m.selected = len(m.visible) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func nextDetail(d detailView) detailView {
	switch d {
	case viewLayout:
		return viewParse
	case viewParse:
		return viewSerialize
	default:
		return viewLayout
	}
}

func (m *inspectModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)) + "\n"
	}
	if m.file == nil {
		return "Loading " + m.filename + "...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("pdlc-inspect"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	if m.detail == viewList {
		if m.filtering || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		for i, name := range m.visible {
			kind, _ := m.file.Lookup(name)
			line := fmt.Sprintf("%-24s %s", name, kindStyle.Render(kind))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter inspect • / filter • q quit"))
		return b.String()
	}

	name := m.visible[m.selected]
	kind, _ := m.file.Lookup(name)
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%s (%s)", name, kind)))
	b.WriteString("\n\n")

	if kind == "enum" {
		b.WriteString(describeEnum(m.file.Enums[name]))
	} else {
		rl, err := m.calc.Calculate(m.file, name)
		if err != nil {
			b.WriteString(errorStyle.Render(err.Error()))
		} else {
			switch m.detail {
			case viewLayout:
				b.WriteString(describeLayout(rl))
			case viewParse, viewSerialize:
				prog, err := m.cirb.Build(m.file, name)
				if err != nil {
					b.WriteString(errorStyle.Render(err.Error()))
				} else if m.detail == viewParse {
					b.WriteString(describeProgram(prog.Parse))
				} else {
					b.WriteString(describeProgram(prog.Serialize))
				}
			}
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("tab cycle layout/parse/serialize • esc/q back"))
	return b.String()
}

func describeEnum(e *model.EnumInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "complete=%v truncated=%v\n\n", e.Complete, e.Truncated)
	for _, t := range e.Decl.Tags {
		if t.RangeEnd != nil {
			fmt.Fprintf(&b, "  %s = %d..%d\n", t.Name, t.Value, *t.RangeEnd)
		} else if t.Other {
			fmt.Fprintf(&b, "  %s = ..\n", t.Name)
		} else {
			fmt.Fprintf(&b, "  %s = %d\n", t.Name, t.Value)
		}
	}
	return b.String()
}
