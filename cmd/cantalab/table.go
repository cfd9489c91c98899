package main

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// tableColumn describes one queue-view column: its header, whether it holds
// numbers (right aligned), and whether its cells hold pipeline statuses that
// get severity colors on a TTY.
type tableColumn struct {
	header  string
	numeric bool
	status  bool
}

func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	colorize := stdoutIsTTY()

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col.header
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i, col := range columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if col.status && colorize && cell != "" {
				cell = colorStatus(cell)
			}
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// colorStatus paints a status by severity: terminal failures red, delivered
// green, everything still in flight yellow.
func colorStatus(status string) string {
	switch {
	case strings.HasPrefix(status, "error-"), status == string(store.LyricStatusFailed):
		return ansiRed + status + ansiReset
	case status == string(store.MusicStatusSent), status == string(store.LyricStatusSent):
		return ansiGreen + status + ansiReset
	default:
		return ansiYellow + status + ansiReset
	}
}

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}
