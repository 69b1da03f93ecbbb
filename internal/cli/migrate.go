package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-league-client/internal/config"
	"quiz-league-client/internal/infra/memory"
	pgloader "quiz-league-client/internal/infra/postgres"
	pgmigrations "quiz-league-client/internal/infra/postgres/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the question bank schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := runMigrationsWithConfig(ctx, opts.cfg, opts.logger); err != nil {
				return err
			}
			if seed {
				return seedDailyQuiz(ctx, opts.cfg, opts.logger)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "store the built-in daily quiz in the question bank")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info().Msg("schema is up to date")
		return nil
	}
	logger.Info().Str("group", group.String()).Msg("migrations applied")
	return nil
}

func seedDailyQuiz(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	quiz := memory.DailyQuiz(cfg.Quiz.ID)
	if err := pgloader.NewQuizLoader(pool).SaveQuiz(ctx, cfg.Quiz.Name, quiz); err != nil {
		return fmt.Errorf("seed quiz %s: %w", quiz.ID, err)
	}
	logger.Info().Str("quiz_id", quiz.ID).Int("questions", len(quiz.Questions)).Msg("daily quiz seeded")

	if cfg.Redis.Addr == "" {
		return nil
	}
	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.invalidateQuiz(ctx)
}
