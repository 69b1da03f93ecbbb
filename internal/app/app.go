package app

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// LeagueRepository is the remote league contract (HTTP API or in-memory mock).
type LeagueRepository interface {
	CreateLeague(ctx context.Context, req domain.CreateLeagueRequest) (domain.CreateLeagueResponse, error)
	CheckJoinCode(ctx context.Context, code, userID string) (domain.JoinCheckResponse, error)
	ConfirmJoin(ctx context.Context, leagueID, userID string) (domain.ConfirmJoinResponse, error)
	SearchPublicLeagues(ctx context.Context, query string) ([]domain.PublicLeague, error)
}

// ScoreUpdater receives the points of a finished quiz.
type ScoreUpdater interface {
	UpdateScore(ctx context.Context, points int) error
}

// LeagueRefresher is signalled whenever the user's league list changed.
type LeagueRefresher interface {
	RefreshLeagues()
}

// Navigator switches the visible page.
type Navigator interface {
	Navigate(page string)
}

// Haptics plays vibration feedback.
type Haptics interface {
	Vibrate(pattern domain.HapticPattern)
}

type ScoreUpdaterFunc func(ctx context.Context, points int) error

func (f ScoreUpdaterFunc) UpdateScore(ctx context.Context, points int) error { return f(ctx, points) }

type RefresherFunc func()

func (f RefresherFunc) RefreshLeagues() { f() }

type NavigatorFunc func(page string)

func (f NavigatorFunc) Navigate(page string) { f(page) }

type HapticsFunc func(pattern domain.HapticPattern)

func (f HapticsFunc) Vibrate(pattern domain.HapticPattern) { f(pattern) }

// Collaborators are the outbound ports shared by the workflows.
// Nil ports are skipped; a nil Clock means the real clock.
type Collaborators struct {
	Scores    ScoreUpdater
	Refresher LeagueRefresher
	Navigator Navigator
	Haptics   Haptics
	Clock     clockwork.Clock
	Logger    zerolog.Logger
}

func (c Collaborators) clock() clockwork.Clock {
	if c.Clock == nil {
		return clockwork.NewRealClock()
	}
	return c.Clock
}

func (c Collaborators) refresh() {
	if c.Refresher != nil {
		c.Refresher.RefreshLeagues()
	}
}

func (c Collaborators) navigate(page string) {
	if c.Navigator != nil {
		c.Navigator.Navigate(page)
	}
}

func (c Collaborators) vibrate(pattern domain.HapticPattern) {
	if c.Haptics != nil {
		c.Haptics.Vibrate(pattern)
	}
}

// hub fans snapshots out to subscribers. It is guarded by its owner's mutex.
type hub[T any] struct {
	subscribers map[chan T]struct{}
	closed      bool
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subscribers: make(map[chan T]struct{})}
}

// add registers a subscriber primed with initial. After closeAll the
// returned channel carries initial and is already closed.
func (h *hub[T]) add(initial T) chan T {
	ch := make(chan T, 8)
	ch <- initial
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

func (h *hub[T]) remove(ch chan T) {
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func (h *hub[T]) publish(v T) {
	for ch := range h.subscribers {
		select {
		case ch <- v:
		default:
			// drop the oldest update so slow readers never block the owner
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

func (h *hub[T]) closeAll() {
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
