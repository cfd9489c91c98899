package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/daemon"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the request queues",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show request counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *apiClient, st *store.Store) error {
				var lyricCounts map[store.LyricStatus]int
				var musicCounts map[store.MusicStatus]int

				if client != nil {
					counts, err := client.Queue(cmd.Context())
					if err != nil {
						return err
					}
					lyricCounts, musicCounts = counts.Lyrics, counts.Music
				} else {
					var err error
					if lyricCounts, err = st.LyricStatusCounts(cmd.Context()); err != nil {
						return err
					}
					if musicCounts, err = st.MusicStatusCounts(cmd.Context()); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if len(lyricCounts) == 0 && len(musicCounts) == 0 {
					fmt.Fprintln(out, "Queues are empty")
					return nil
				}
				fmt.Fprint(out, renderCountTable("Lyric Requests", lyricCountRows(lyricCounts)))
				fmt.Fprint(out, renderCountTable("Song Requests", musicCountRows(musicCounts)))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list [lyrics|music]",
		Short: "List queued requests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "music"
			if len(args) == 1 {
				kind = args[0]
			}
			switch kind {
			case "lyrics":
				return listLyricRequests(ctx, cmd, listStatuses)
			case "music":
				return listMusicRequests(ctx, cmd, listStatuses)
			default:
				return fmt.Errorf("unknown queue %q (expected lyrics or music)", kind)
			}
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func listLyricRequests(ctx *commandContext, cmd *cobra.Command, statuses []string) error {
	return ctx.withStore(func(client *apiClient, st *store.Store) error {
		var items []daemon.LyricItem

		if client != nil {
			var err error
			if items, err = client.ListLyrics(cmd.Context(), statuses); err != nil {
				return err
			}
		} else {
			filter := make([]store.LyricStatus, 0, len(statuses))
			for _, status := range statuses {
				filter = append(filter, store.LyricStatus(status))
			}
			requests, err := st.ListLyricRequests(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			for _, req := range requests {
				items = append(items, daemon.LyricItem{
					ID:          req.ID,
					LeadID:      req.LeadID,
					Status:      string(req.Status),
					Purpose:     req.Purpose,
					Attempts:    req.Attempts,
					CreatedAt:   req.CreatedAt,
					GeneratedAt: req.GeneratedAt,
				})
			}
		}

		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No lyric requests")
			return nil
		}
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, []string{
				item.ID,
				item.Status,
				item.Purpose,
				strconv.Itoa(item.Attempts),
				item.CreatedAt.Local().Format(time.RFC3339),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]tableColumn{
				{header: "ID"},
				{header: "Status", status: true},
				{header: "Purpose"},
				{header: "Attempts", numeric: true},
				{header: "Created"},
			},
			rows,
		))
		return nil
	})
}

func listMusicRequests(ctx *commandContext, cmd *cobra.Command, statuses []string) error {
	return ctx.withStore(func(client *apiClient, st *store.Store) error {
		var items []daemon.MusicItem

		if client != nil {
			var err error
			if items, err = client.ListMusic(cmd.Context(), statuses); err != nil {
				return err
			}
		} else {
			filter := make([]store.MusicStatus, 0, len(statuses))
			for _, status := range statuses {
				filter = append(filter, store.MusicStatus(status))
			}
			requests, err := st.ListMusicRequests(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			for _, req := range requests {
				items = append(items, daemon.MusicItem{
					ID:        req.ID,
					LeadID:    req.LeadID,
					Phone:     req.Phone,
					Status:    string(req.Status),
					Recipient: req.Recipient,
					Genre:     req.Genre,
					Attempts:  req.Attempts,
					CreatedAt: req.CreatedAt,
				})
			}
		}

		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No song requests")
			return nil
		}
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, []string{
				item.ID,
				item.Status,
				item.Recipient,
				item.Genre,
				strconv.Itoa(item.Attempts),
				item.CreatedAt.Local().Format(time.RFC3339),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]tableColumn{
				{header: "ID"},
				{header: "Status", status: true},
				{header: "Recipient"},
				{header: "Genre"},
				{header: "Attempts", numeric: true},
				{header: "Created"},
			},
			rows,
		))
		return nil
	})
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check store and stage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *apiClient, st *store.Store) error {
				out := cmd.OutOrStdout()

				if client != nil {
					status, err := client.Status(cmd.Context())
					if err != nil {
						return err
					}
					healthy := true
					for _, health := range status.Health {
						state := "ready"
						if !health.Ready {
							healthy = false
							state = "not ready"
							if health.Detail != "" {
								state += ": " + health.Detail
							}
						}
						fmt.Fprintf(out, "%s: %s\n", health.Name, state)
					}
					if healthy {
						fmt.Fprintln(out, "All stages healthy")
					}
					return nil
				}

				if err := st.HealthCheck(cmd.Context()); err != nil {
					return fmt.Errorf("store health: %w", err)
				}
				fmt.Fprintln(out, "Store reachable; daemon not running")
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <lyrics|music> <id>",
		Short: "Rewind a failed request so the pipeline picks it up again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id := args[0], args[1]
			return ctx.withStore(func(client *apiClient, st *store.Store) error {
				out := cmd.OutOrStdout()
				switch kind {
				case "lyrics":
					if client != nil {
						resp, err := client.RetryLyric(cmd.Context(), id)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "Request %s rewound to %s\n", resp.ID, resp.Status)
						return nil
					}
					if err := st.RetryLyricRequest(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(out, "Request %s rewound to %s\n", id, store.LyricStatusPending)
					return nil
				case "music":
					if client != nil {
						resp, err := client.RetryMusic(cmd.Context(), id)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "Request %s rewound to %s\n", resp.ID, resp.Status)
						return nil
					}
					req, err := st.RetryMusicRequest(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Request %s rewound to %s\n", req.ID, req.Status)
					return nil
				default:
					return fmt.Errorf("unknown queue %q (expected lyrics or music)", kind)
				}
			})
		},
	}
}
