package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type formField struct {
	label       string
	placeholder string
	secret      bool
}

// form is a vertical stack of text inputs with one focused at a time.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(fields ...formField) form {
	f := form{}
	for _, field := range fields {
		in := textinput.New()
		in.Placeholder = field.placeholder
		in.CharLimit = 128
		in.Width = 32
		in.Prompt = "› "
		in.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
		if field.secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		f.labels = append(f.labels, field.label)
		f.inputs = append(f.inputs, in)
	}
	return f
}

func (f *form) setFocus(index int) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	if index < 0 {
		index = len(f.inputs) - 1
	}
	if index >= len(f.inputs) {
		index = 0
	}
	f.focus = index
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	return f.inputs[index].Focus()
}

func (f *form) next() tea.Cmd {
	return f.setFocus(f.focus + 1)
}

func (f *form) prev() tea.Cmd {
	return f.setFocus(f.focus - 1)
}

func (f form) onLast() bool {
	return f.focus == len(f.inputs)-1
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f form) value(index int) string {
	return f.inputs[index].Value()
}

func (f *form) setValue(index int, value string) {
	f.inputs[index].SetValue(value)
}

func (f *form) clear(indexes ...int) {
	if len(indexes) == 0 {
		for i := range f.inputs {
			f.inputs[i].Reset()
		}
		return
	}
	for _, i := range indexes {
		f.inputs[i].Reset()
	}
}

func (f form) view() string {
	label := lipgloss.NewStyle().Width(12)
	active := label.Bold(true)
	rows := make([]string, 0, len(f.inputs))
	for i, in := range f.inputs {
		style := label
		if i == f.focus {
			style = active
		}
		rows = append(rows, style.Render(f.labels[i])+in.View())
	}
	return strings.Join(rows, "\n")
}
