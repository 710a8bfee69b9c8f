package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jask/bookkeeper/internal/service"
)

const maxPayeeWidth = 40

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// suggestionsTable renders suggestions in the order given.
func suggestionsTable(s []service.Suggestion) string {
	colStyles := []lipgloss.Style{
		lipgloss.NewStyle().Foreground(colorSky),
		lipgloss.NewStyle().Foreground(colorYellow),
		lipgloss.NewStyle().Foreground(colorMauve).Align(lipgloss.Right),
		lipgloss.NewStyle().Foreground(colorGreen),
		lipgloss.NewStyle().Foreground(colorText).Align(lipgloss.Right),
		lipgloss.NewStyle().Foreground(colorOverlay1),
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorSurface1)).
		Headers("Date", "Payee", "Amount", "Suggested Category", "Confidence", "Source").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(colorPeach).Padding(0, 1)
			}
			return colStyles[col].Padding(0, 1)
		})
	for _, sg := range s {
		t.Row(
			sg.Transaction.Date.String(),
			truncate(sg.Transaction.Payee, maxPayeeWidth),
			sg.Transaction.Amount.StringFixed(2),
			sg.Category,
			fmt.Sprintf("%.0f%%", sg.Confidence*100),
			string(sg.Source),
		)
	}
	return t.Render()
}

// printGrouped writes "TYPE" headings with indented names.
func printGrouped(w io.Writer, groups map[string][]string, order []string) {
	for _, k := range order {
		fmt.Fprintln(w, titleStyle.Render(k))
		for _, name := range groups[k] {
			fmt.Fprintln(w, "  "+name)
		}
	}
}

func kv(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
