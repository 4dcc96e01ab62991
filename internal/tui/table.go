package tui

import (
	"fmt"
	"math"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/san-kum/adinf/internal/experiment"
	"github.com/san-kum/adinf/internal/stats"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	missing     = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Padding(0, 1)
)

// AverageRows tabulates a sweep: one row per setting value and filter, each
// key averaged over the repetitions.
func AverageRows(res *experiment.SweepResult) (headers []string, rows [][]string) {
	headers = append([]string{res.Suite.Setting, "method"}, stats.Keys...)
	for _, v := range res.Suite.Values {
		for fi, f := range res.Suite.Filters {
			row := []string{strconv.FormatFloat(v, 'g', 4, 64), f.Label()}
			for _, k := range stats.Keys {
				row = append(row, formatAverage(res.Mean(v, fi, k)))
			}
			rows = append(rows, row)
		}
	}
	return headers, rows
}

func formatAverage(x float64) string {
	if math.IsNaN(x) {
		return "-"
	}
	return fmt.Sprintf("%.4f", x)
}

// RenderTable draws rows under headers with a rounded border.
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && col < len(rows[row]) && rows[row][col] == "-" {
				return missing
			}
			return cellStyle
		})
	return t.String()
}
