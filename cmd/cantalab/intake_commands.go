package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/whatsapp"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

func newLyricsCommand(ctx *commandContext) *cobra.Command {
	lyricsCmd := &cobra.Command{
		Use:   "lyrics",
		Short: "Manage standalone lyric requests",
	}
	lyricsCmd.AddCommand(newLyricsAddCommand(ctx))
	return lyricsCmd
}

func newLyricsAddCommand(ctx *commandContext) *cobra.Command {
	var intake lyricIntake

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a lyric for generation and delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(intake.Phone) == "" {
				return errors.New("--phone is required")
			}
			if strings.TrimSpace(intake.Purpose) == "" {
				return errors.New("--purpose is required")
			}
			return ctx.withStore(func(client *apiClient, st *store.Store) error {
				if client != nil {
					resp, err := client.CreateLyric(cmd.Context(), intake)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued lyric request %s (%s)\n", resp.ID, resp.Status)
					return nil
				}

				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				phone, err := whatsapp.NormalizePhone(intake.Phone, cfg.WhatsApp.DefaultCountryCode)
				if err != nil {
					return err
				}
				lead, _, err := st.UpsertLeadByPhone(cmd.Context(), phone, intake.Name, "intake")
				if err != nil {
					return err
				}
				req := &store.LyricRequest{
					LeadID:      lead.ID,
					Purpose:     intake.Purpose,
					IncludeName: intake.IncludeName,
					Anecdotes:   intake.Anecdotes,
				}
				if err := st.CreateLyricRequest(cmd.Context(), req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued lyric request %s (%s)\n", req.ID, req.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&intake.Phone, "phone", "", "Lead phone number")
	cmd.Flags().StringVar(&intake.Name, "name", "", "Lead name")
	cmd.Flags().StringVar(&intake.Purpose, "purpose", "", "Occasion or purpose of the lyric")
	cmd.Flags().StringVar(&intake.IncludeName, "include-name", "", "Name to weave into the lyric")
	cmd.Flags().StringVar(&intake.Anecdotes, "anecdotes", "", "Personal anecdotes to draw on")
	return cmd
}

func newMusicCommand(ctx *commandContext) *cobra.Command {
	musicCmd := &cobra.Command{
		Use:   "music",
		Short: "Manage personalized song requests",
	}
	musicCmd.AddCommand(newMusicAddCommand(ctx))
	return musicCmd
}

func newMusicAddCommand(ctx *commandContext) *cobra.Command {
	var intake musicIntake

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a full song for generation and delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(intake.Phone) == "" {
				return errors.New("--phone is required")
			}
			if strings.TrimSpace(intake.Genre) == "" {
				return errors.New("--genre is required")
			}
			return ctx.withStore(func(client *apiClient, st *store.Store) error {
				if client != nil {
					resp, err := client.CreateMusic(cmd.Context(), intake)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued song request %s (%s)\n", resp.ID, resp.Status)
					return nil
				}

				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				phone, err := whatsapp.NormalizePhone(intake.Phone, cfg.WhatsApp.DefaultCountryCode)
				if err != nil {
					return err
				}
				lead, _, err := st.UpsertLeadByPhone(cmd.Context(), phone, intake.Name, "intake")
				if err != nil {
					return err
				}
				recipient := intake.Recipient
				if strings.TrimSpace(recipient) == "" {
					recipient = lead.Name
				}
				req := &store.MusicRequest{
					LeadID:    lead.ID,
					Phone:     lead.Phone,
					Recipient: recipient,
					Artist:    intake.Artist,
					Genre:     intake.Genre,
					Voice:     intake.Voice,
					Anecdotes: intake.Anecdotes,
				}
				if err := st.CreateMusicRequest(cmd.Context(), req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued song request %s (%s)\n", req.ID, req.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&intake.Phone, "phone", "", "Lead phone number")
	cmd.Flags().StringVar(&intake.Name, "name", "", "Lead name")
	cmd.Flags().StringVar(&intake.Recipient, "recipient", "", "Person the song is for (defaults to the lead)")
	cmd.Flags().StringVar(&intake.Artist, "artist", "", "Artist whose style to imitate")
	cmd.Flags().StringVar(&intake.Genre, "genre", "", "Musical genre")
	cmd.Flags().StringVar(&intake.Voice, "voice", "", "Preferred voice")
	cmd.Flags().StringVar(&intake.Anecdotes, "anecdotes", "", "Personal anecdotes to draw on")
	return cmd
}
