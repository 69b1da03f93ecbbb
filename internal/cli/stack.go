package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/app"
	"quiz-league-client/internal/config"
	"quiz-league-client/internal/domain"
	"quiz-league-client/internal/infra/memory"
	pgloader "quiz-league-client/internal/infra/postgres"
	rediscache "quiz-league-client/internal/infra/redis"
	"quiz-league-client/internal/infra/remote"
	transport "quiz-league-client/internal/transport/http"
)

type quizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

type questionCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

// stack is the set of repositories selected by configuration:
// the remote API when api.base_url is set, the in-memory league server
// otherwise; Postgres as question bank and Redis as cache when configured.
type stack struct {
	cfg    config.Config
	logger zerolog.Logger

	quizzes app.QuizRepository
	cache   questionCache
	leagues app.LeagueRepository
	lister  transport.LeagueLister

	client *remote.Client
	local  *memory.LeagueRepository
	rdb    *redis.Client
	pool   *pgxpool.Pool
}

func buildStack(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stack, error) {
	s := &stack{cfg: cfg, logger: logger}

	var loader quizLoader
	if cfg.API.BaseURL != "" {
		httpClient := &http.Client{Timeout: config.TTLDuration(cfg.API.Timeout, 10*time.Second)}
		retry := remote.NewRetryClient(httpClient,
			remote.WithBackoff(cfg.API.MaxRetries, config.TTLDuration(cfg.API.BaseDelay, remote.BaseDelay)),
			remote.WithLogger(logger),
		)
		s.client = remote.NewClient(cfg.API.BaseURL, cfg.API.Key, retry)
		s.leagues = s.client
		s.lister = s.client
		loader = s.client
		logger.Info().Str("base_url", cfg.API.BaseURL).Msg("using remote league api")
	} else {
		s.local = memory.NewLeagueRepository(memory.DefaultLeagues())
		s.leagues = s.local
		s.lister = s.local
		loader = memory.NewStaticQuizLoader(map[string]domain.Quiz{cfg.Quiz.ID: memory.DailyQuiz(cfg.Quiz.ID)})
		logger.Info().Msg("no api configured, using in-memory leagues")
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		repo := rediscache.NewQuizRepository(s.rdb, loader, quizTTL)
		s.quizzes, s.cache = repo, repo
		s.leagues = rediscache.NewSearchCache(s.leagues, s.rdb, config.TTLDuration(cfg.Redis.SearchTTL, 30*time.Second))
	} else {
		repo := memory.NewQuizRepository(loader, quizTTL)
		s.quizzes, s.cache = repo, repo
	}
	return s, nil
}

// scores returns the sinks that receive a finished quiz's points for userID.
func (s *stack) scores(userID string) app.ScoreUpdater {
	var sinks []app.ScoreUpdater
	if s.client != nil {
		sinks = append(sinks, remote.NewScoreReporter(s.client, userID, s.cfg.Quiz.ID, s.logger))
	}
	if s.local != nil {
		sinks = append(sinks, app.ScoreUpdaterFunc(func(ctx context.Context, points int) error {
			return s.local.AddPoints(ctx, userID, points)
		}))
	}
	if s.rdb != nil {
		sinks = append(sinks, rediscache.NewScoreLedger(s.rdb, userID))
	}
	return app.ScoreUpdaterFunc(func(ctx context.Context, points int) error {
		var errs []error
		for _, sink := range sinks {
			errs = append(errs, sink.UpdateScore(ctx, points))
		}
		return errors.Join(errs...)
	})
}

// refresher re-lists the user's leagues after onboarding changed them.
func (s *stack) refresher(userID string, onList func([]domain.MemberLeague)) app.LeagueRefresher {
	if s.client != nil {
		return remote.NewLeagueLister(s.client, userID, s.logger, onList)
	}
	return app.RefresherFunc(func() {
		leagues, err := s.lister.MyLeagues(context.Background(), userID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("refresh leagues failed")
			return
		}
		onList(leagues)
	})
}

// invalidateQuiz drops the cached questions of the configured quiz so the
// next session reads the question bank again.
func (s *stack) invalidateQuiz(ctx context.Context) error {
	if err := s.cache.Invalidate(ctx, s.cfg.Quiz.ID); err != nil {
		return fmt.Errorf("invalidate quiz %s: %w", s.cfg.Quiz.ID, err)
	}
	s.logger.Info().Str("quiz_id", s.cfg.Quiz.ID).Msg("question cache invalidated")
	return nil
}

// printStanding reports the Redis ledger for userID. It prints nothing when
// no Redis is configured.
func (s *stack) printStanding(ctx context.Context, userID string, out io.Writer) error {
	if s.rdb == nil {
		return nil
	}
	ledger := rediscache.NewScoreLedger(s.rdb, userID)
	total, err := ledger.Total(ctx)
	if err != nil {
		return fmt.Errorf("read score total: %w", err)
	}
	rank, err := ledger.DailyRank(ctx)
	if err != nil {
		return fmt.Errorf("read daily rank: %w", err)
	}
	if rank == 0 {
		fmt.Fprintf(out, "Total: %d points.\n", total)
		return nil
	}
	fmt.Fprintf(out, "Total: %d points, #%d today.\n", total, rank)
	return nil
}

func (s *stack) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
