package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"quiz-league-client/internal/config"
	transport "quiz-league-client/internal/transport/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the quiz and league workflows over websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	logger := opts.logger

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	wsHandler := transport.NewWSHandler(transport.Deps{
		Quizzes: st.quizzes,
		Leagues: st.leagues,
		Lister:  st.lister,
		Quiz:    cfg.Quiz.QuizConfig,
		Scores:  st.scores,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	wsHandler.Register(mux)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           corsHandler(cfg).Handler(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting quiz league bridge")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	// SIGHUP drops the cached questions, e.g. after migrate --seed
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

wait:
	for {
		select {
		case <-reload:
			if err := st.invalidateQuiz(ctx); err != nil {
				logger.Warn().Err(err).Msg("reload failed")
			}
		case <-stop:
			logger.Info().Msg("shutting down server...")
			break wait
		case <-ctx.Done():
			logger.Info().Msg("context canceled, shutting down server...")
			break wait
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func corsHandler(cfg config.Config) *cors.Cors {
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowCredentials: false,
	})
}
