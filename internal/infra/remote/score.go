package remote

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"quiz-league-client/internal/domain"
)

// ScoreReporter forwards finished quiz points to the score endpoint.
type ScoreReporter struct {
	client *Client
	userID string
	quizID string
	logger zerolog.Logger
}

func NewScoreReporter(client *Client, userID, quizID string, logger zerolog.Logger) *ScoreReporter {
	return &ScoreReporter{client: client, userID: userID, quizID: quizID, logger: logger}
}

func (r *ScoreReporter) UpdateScore(ctx context.Context, points int) error {
	standing, err := r.client.SubmitScore(ctx, domain.ScoreSubmission{
		UserID: r.userID,
		QuizID: r.quizID,
		Points: points,
	})
	if err != nil {
		return err
	}
	r.logger.Info().
		Int("points", points).
		Int("overall_score", standing.OverallScore).
		Int("rank", standing.Rank).
		Msg("score submitted")
	return nil
}

// LeagueLister refreshes the user's league list after onboarding.
type LeagueLister struct {
	client *Client
	userID string
	logger zerolog.Logger
	onList func([]domain.MemberLeague)
}

func NewLeagueLister(client *Client, userID string, logger zerolog.Logger, onList func([]domain.MemberLeague)) *LeagueLister {
	return &LeagueLister{client: client, userID: userID, logger: logger, onList: onList}
}

// RefreshLeagues fetches /api/leagues/my and hands the list to onList.
// Failures are logged; the refresh is a best-effort signal.
func (l *LeagueLister) RefreshLeagues() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	leagues, err := l.client.MyLeagues(ctx, l.userID)
	if err != nil {
		l.logger.Warn().Err(err).Msg("refresh leagues failed")
		return
	}
	if l.onList != nil {
		l.onList(leagues)
	}
}
