package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"quiz-league-client/internal/domain"
)

// LeagueSource is the league contract being cached.
type LeagueSource interface {
	CreateLeague(ctx context.Context, req domain.CreateLeagueRequest) (domain.CreateLeagueResponse, error)
	CheckJoinCode(ctx context.Context, code, userID string) (domain.JoinCheckResponse, error)
	ConfirmJoin(ctx context.Context, leagueID, userID string) (domain.ConfirmJoinResponse, error)
	SearchPublicLeagues(ctx context.Context, query string) ([]domain.PublicLeague, error)
}

const searchGenKey = "league:search:gen"

// SearchCache memoises public league searches in Redis for a short TTL.
// Writes that change membership bump a generation counter, which retires
// every cached search at once.
type SearchCache struct {
	LeagueSource

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	logger zerolog.Logger
}

func NewSearchCache(source LeagueSource, client *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{LeagueSource: source, client: client, ttl: ttl, logger: log.Logger}
}

func (c *SearchCache) SearchPublicLeagues(ctx context.Context, query string) ([]domain.PublicLeague, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, nil
	}
	key := c.searchKey(ctx, normalized)

	if hits, ok := c.cached(ctx, key); ok {
		return hits, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if hits, ok := c.cached(ctx, key); ok {
			return hits, nil
		}
		hits, err := c.LeagueSource.SearchPublicLeagues(ctx, query)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(hits); err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn().Err(err).Str("query", normalized).Msg("cache search failed")
			}
		}
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.PublicLeague), nil
}

func (c *SearchCache) CreateLeague(ctx context.Context, req domain.CreateLeagueRequest) (domain.CreateLeagueResponse, error) {
	resp, err := c.LeagueSource.CreateLeague(ctx, req)
	if err == nil {
		c.bump(ctx)
	}
	return resp, err
}

func (c *SearchCache) ConfirmJoin(ctx context.Context, leagueID, userID string) (domain.ConfirmJoinResponse, error) {
	resp, err := c.LeagueSource.ConfirmJoin(ctx, leagueID, userID)
	if err == nil {
		c.bump(ctx)
	}
	return resp, err
}

func (c *SearchCache) cached(ctx context.Context, key string) ([]domain.PublicLeague, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("read search cache failed")
		}
		return nil, false
	}
	var hits []domain.PublicLeague
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, false
	}
	return hits, true
}

func (c *SearchCache) searchKey(ctx context.Context, query string) string {
	gen, err := c.client.Get(ctx, searchGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Msg("read search generation failed")
	}
	return "league:search:" + strconv.FormatInt(gen, 10) + ":" + query
}

func (c *SearchCache) bump(ctx context.Context) {
	if err := c.client.Incr(ctx, searchGenKey).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("bump search generation failed")
	}
}
