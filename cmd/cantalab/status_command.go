package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *apiClient, st *store.Store) error {
				out := cmd.OutOrStdout()
				colorize := stdoutIsTTY()

				if client == nil {
					fmt.Fprintln(out, statusLine("Daemon", "stopped", ansiYellow, colorize))
					return renderStoreCounts(cmd, st)
				}

				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintln(out, statusLine("Daemon", "running", ansiGreen, colorize))
				fmt.Fprintf(out, "Database: %s\n", status.DBPath)
				fmt.Fprintf(out, "Leads: %d\n", status.Leads)

				for _, health := range status.Health {
					label := "ready"
					color := ansiGreen
					if !health.Ready {
						label = "not ready"
						color = ansiRed
						if health.Detail != "" {
							label = fmt.Sprintf("not ready (%s)", health.Detail)
						}
					}
					fmt.Fprintln(out, statusLine(health.Name, label, color, colorize))
				}

				if len(status.Stages) > 0 {
					rows := make([][]string, 0, len(status.Stages))
					for _, stage := range status.Stages {
						lastRun := "never"
						if !stage.LastRun.IsZero() {
							lastRun = stage.LastRun.Local().Format(time.RFC3339)
						}
						rows = append(rows, []string{
							stage.Name,
							fmt.Sprintf("%d", stage.Runs),
							lastRun,
							stage.LastErr,
						})
					}
					fmt.Fprintln(out, renderTable(
						[]tableColumn{
							{header: "Stage"},
							{header: "Runs", numeric: true},
							{header: "Last Run"},
							{header: "Last Error"},
						},
						rows,
					))
				}

				fmt.Fprint(out, renderCountTable("Lyric Requests", lyricCountRows(status.LyricCounts)))
				fmt.Fprint(out, renderCountTable("Song Requests", musicCountRows(status.MusicCounts)))
				return nil
			})
		},
	}
}

func statusLine(label, value, color string, colorize bool) string {
	line := fmt.Sprintf("%s: %s", label, value)
	if colorize && color != "" {
		return color + line + ansiReset
	}
	return line
}

func renderStoreCounts(cmd *cobra.Command, st *store.Store) error {
	lyricCounts, err := st.LyricStatusCounts(cmd.Context())
	if err != nil {
		return err
	}
	musicCounts, err := st.MusicStatusCounts(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderCountTable("Lyric Requests", lyricCountRows(lyricCounts)))
	fmt.Fprint(out, renderCountTable("Song Requests", musicCountRows(musicCounts)))
	return nil
}

func renderCountTable(title string, rows [][]string) string {
	if len(rows) == 0 {
		return fmt.Sprintf("%s: none\n", title)
	}
	return fmt.Sprintf("%s:\n%s\n", title,
		renderTable([]tableColumn{
			{header: "Status", status: true},
			{header: "Count", numeric: true},
		}, rows))
}

func lyricCountRows(counts map[store.LyricStatus]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for status, count := range counts {
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
	}
	sortRows(rows)
	return rows
}

func musicCountRows(counts map[store.MusicStatus]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for status, count := range counts {
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
	}
	sortRows(rows)
	return rows
}

func sortRows(rows [][]string) {
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
}
