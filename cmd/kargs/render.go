package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/wippyai/kernel-runtime/signature"
)

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	kind   lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	errorS lipgloss.Style
	border lipgloss.Style
}

func useColor(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newStyles(color bool) styles {
	plain := lipgloss.NewStyle()
	if !color {
		return styles{
			title:  plain.Bold(true),
			header: plain.Bold(true).Padding(0, 1),
			cell:   plain.Padding(0, 1),
			kind:   plain,
			label:  plain,
			value:  plain,
			errorS: plain,
			border: plain,
		}
	}
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		header: lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#87CEEB")),
		cell:   lipgloss.NewStyle().Padding(0, 1),
		kind:   lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		value:  lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		errorS: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		border: lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

func (s styles) paramTable(sig *signature.Signature) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers("#", "name", "kind", "type", "size", "align", "offset", "access").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})

	for i, d := range sig.Params() {
		access := ""
		if d.Kind == signature.KindBuffer || d.Kind == signature.KindImage {
			access = d.Access.String()
		}
		typ := ""
		if d.Kind == signature.KindValue {
			typ = d.TypeName()
		}
		t.Row(
			strconv.Itoa(i),
			d.Name,
			s.kind.Render(d.Kind.String()),
			typ,
			strconv.FormatUint(uint64(d.Size), 10),
			strconv.FormatUint(uint64(d.Align), 10),
			strconv.FormatUint(uint64(d.Offset), 10),
			access,
		)
	}
	return t.Render()
}

func (s styles) field(label string, format string, args ...any) string {
	return s.label.Render(label+":") + " " + s.value.Render(fmt.Sprintf(format, args...))
}
