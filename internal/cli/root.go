package cli

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"quiz-league-client/internal/config"
)

// rootOptions holds the persistent flags and the configuration resolved
// before any subcommand runs.
type rootOptions struct {
	configPath string
	port       string
	userID     string
	logLevel   string

	cfg    config.Config
	logger zerolog.Logger
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "quiz-league",
		Short:         "Daily football quiz and league onboarding engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.port, "port", "", "port to listen on (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.userID, "user", "", "user id (overrides USER_ID)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newPlayCmd(opts))
	cmd.AddCommand(newLeagueCmd(opts))
	return cmd
}

// resolve loads .env, the YAML file and environment overrides, then sets
// up the global logger.
func (o *rootOptions) resolve() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := config.LoadOptional(o.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if o.port != "" {
		cfg.Server.Port = o.port
	}
	if o.userID != "" {
		cfg.User.ID = o.userID
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	o.logger = newLogger(cfg)
	log.Logger = o.logger

	if cfg.User.ID == "" {
		cfg.User.ID = uuid.NewString()
		o.logger.Debug().Str("user_id", cfg.User.ID).Msg("no user configured, using an anonymous id")
	}
	o.cfg = cfg
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
