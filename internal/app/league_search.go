package app

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/countdown"
	"quiz-league-client/internal/domain"
)

const (
	// SearchDebounce is the quiet period before a query is sent.
	SearchDebounce = 500 * time.Millisecond
	// MinSearchLength is the shortest query that reaches the network.
	MinSearchLength = 3
	// searchTimeout bounds one search call including its retries.
	searchTimeout = 30 * time.Second
)

// LeagueSearch debounces public league search as the user types.
//
// Every Update gets the next sequence number; a response is applied only if
// its sequence number is still the latest, so the last request wins.
type LeagueSearch struct {
	repo      LeagueRepository
	clock     clockwork.Clock
	logger    zerolog.Logger
	onResults func(domain.SearchState)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	seq     uint64
	state   domain.SearchState
	pending *countdown.Delay
	closed  bool
}

// NewLeagueSearch returns an idle search. onResults runs with the search
// lock held for every applied result and must not call back into the search.
func NewLeagueSearch(repo LeagueRepository, deps Collaborators, onResults func(domain.SearchState)) *LeagueSearch {
	ctx, cancel := context.WithCancel(context.Background())
	return &LeagueSearch{
		repo:      repo,
		clock:     deps.clock(),
		logger:    deps.Logger,
		onResults: onResults,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Update restarts the quiet period with query. Queries shorter than
// MinSearchLength clear the results without a call.
func (s *LeagueSearch) Update(query string) {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending.Cancel()
	s.pending = nil
	s.seq++
	seq := s.seq

	if utf8.RuneCountInString(query) < MinSearchLength {
		s.applyLocked(domain.SearchState{Seq: seq, Query: query})
		return
	}
	s.pending = countdown.After(s.clock, SearchDebounce, func() { s.run(seq, query) })
}

func (s *LeagueSearch) State() domain.SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close cancels the pending debounce and any in-flight search.
func (s *LeagueSearch) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending.Cancel()
	s.pending = nil
	s.cancel()
}

func (s *LeagueSearch) run(seq uint64, query string) {
	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, searchTimeout)
	defer cancel()
	leagues, err := s.repo.SearchPublicLeagues(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.seq {
		s.logger.Debug().Uint64("seq", seq).Str("query", query).Msg("discarding stale search")
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("league search failed")
		leagues = nil
	}
	s.applyLocked(domain.SearchState{Seq: seq, Query: query, Results: leagues})
}

func (s *LeagueSearch) applyLocked(state domain.SearchState) {
	if state.Results == nil {
		state.Results = []domain.PublicLeague{}
	}
	s.state = state
	if s.onResults != nil {
		s.onResults(state)
	}
}
