package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScoreLedger keeps a local running total of quiz points per user.
//
//	INCRBY score:{userID}:total {points}
//	ZINCRBY score:daily:{yyyy-mm-dd} {points} {userID}
type ScoreLedger struct {
	client *redis.Client
	userID string
	now    func() time.Time
}

func NewScoreLedger(client *redis.Client, userID string) *ScoreLedger {
	return &ScoreLedger{client: client, userID: userID, now: time.Now}
}

// UpdateScore adds points to the user's total and to today's board.
func (l *ScoreLedger) UpdateScore(ctx context.Context, points int) error {
	pipe := l.client.TxPipeline()
	pipe.IncrBy(ctx, l.totalKey(), int64(points))
	pipe.ZIncrBy(ctx, l.dailyKey(), float64(points), l.userID)
	pipe.Expire(ctx, l.dailyKey(), 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}

// Total returns the user's accumulated points.
func (l *ScoreLedger) Total(ctx context.Context) (int, error) {
	total, err := l.client.Get(ctx, l.totalKey()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return total, err
}

// DailyRank returns the user's 1-based position on today's board, or 0.
func (l *ScoreLedger) DailyRank(ctx context.Context) (int, error) {
	rank, err := l.client.ZRevRank(ctx, l.dailyKey(), l.userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

func (l *ScoreLedger) totalKey() string {
	return "score:" + l.userID + ":total"
}

func (l *ScoreLedger) dailyKey() string {
	return "score:daily:" + l.now().UTC().Format("2006-01-02")
}
