package cli

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/postgres"
)

// NewRoundsCmd schedules live rounds and shows the current one.
func NewRoundsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Manage live rounds",
	}

	var start string
	schedule := &cobra.Command{
		Use:   "schedule <round-id>",
		Short: "Schedule a round in Postgres (or move an existing one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("parse --start: %w", err)
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			round := domain.Round{ID: args[0], ScheduledStart: at.UTC()}
			if err := postgres.NewRoundRepository(pool).Schedule(cmd.Context(), round); err != nil {
				return err
			}
			log.Info().Str("round_id", round.ID).Time("start", round.ScheduledStart).Msg("round scheduled")
			return nil
		},
	}
	schedule.Flags().StringVar(&start, "start", "", "scheduled start (RFC 3339)")
	_ = schedule.MarkFlagRequired("start")

	var url string
	current := &cobra.Command{
		Use:   "current",
		Short: "Show the round the lobby would wait for",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			round, err := authorityClient(cfg, url).GetCurrentRound(cmd.Context())
			if err != nil {
				return err
			}
			if round == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no round scheduled")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s, starts %s (in %ds)\n",
				round.ID, round.Status, round.ScheduledStart.Format(time.RFC3339), round.TimeUntilStart)
			return nil
		},
	}
	current.Flags().StringVar(&url, "authority", "", "authority base URL (overrides config)")

	cmd.AddCommand(schedule, current)
	return cmd
}
