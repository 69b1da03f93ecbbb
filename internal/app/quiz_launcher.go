package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/countdown"
	"quiz-league-client/internal/domain"
)

// HomePage is the page shown once a quiz finished.
const HomePage = "home"

// LauncherState is what the quiz home screen renders.
type LauncherState struct {
	QuizID           string            `json:"quizId"`
	Name             string            `json:"name"`
	Status           domain.QuizStatus `json:"status"`
	AvailableSeconds int               `json:"availableSeconds"`
	AvailableText    string            `json:"availableText"`
}

// QuizLauncher owns the daily availability window of one quiz and the
// session played inside it. The window only counts down while the quiz is
// Ready; once it reaches zero the quiz is Expired until PlayAgain.
type QuizLauncher struct {
	cfg     domain.QuizConfig
	quizzes QuizRepository
	deps    Collaborators
	clock   clockwork.Clock
	logger  zerolog.Logger

	mu           sync.Mutex
	status       domain.QuizStatus
	launching    bool
	available    int
	availability *countdown.Countdown
	session      *QuizSession
	closed       bool
}

// NewQuizLauncher starts the availability window immediately.
func NewQuizLauncher(cfg domain.QuizConfig, quizzes QuizRepository, deps Collaborators) *QuizLauncher {
	l := &QuizLauncher{
		cfg:       cfg,
		quizzes:   quizzes,
		deps:      deps,
		clock:     deps.clock(),
		logger:    deps.Logger.With().Str("quiz_id", cfg.ID).Logger(),
		status:    domain.QuizReady,
		available: cfg.ExpiresInSeconds,
	}
	l.mu.Lock()
	l.availability = countdown.Start(l.clock, cfg.ExpiresInSeconds, l.onAvailabilityTick, l.onAvailabilityExpired)
	l.mu.Unlock()
	return l
}

// Launch loads the quiz content and starts a new session.
func (l *QuizLauncher) Launch(ctx context.Context) (*QuizSession, error) {
	l.mu.Lock()
	switch {
	case l.closed:
		l.mu.Unlock()
		return nil, domain.ErrWorkflowClosed
	case l.status == domain.QuizExpired:
		l.mu.Unlock()
		return nil, domain.ErrQuizExpired
	case l.status != domain.QuizReady || l.launching:
		l.mu.Unlock()
		return nil, domain.ErrWorkflowBusy
	}
	l.launching = true
	l.mu.Unlock()

	quiz, err := l.quizzes.GetQuiz(ctx, l.cfg.ID)

	l.mu.Lock()
	l.launching = false
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("load quiz %s: %w", l.cfg.ID, err)
	}
	if l.closed {
		l.mu.Unlock()
		return nil, domain.ErrWorkflowClosed
	}
	if l.status == domain.QuizExpired {
		l.mu.Unlock()
		return nil, domain.ErrQuizExpired
	}

	l.availability.Cancel()
	session := NewQuizSession(quiz, l.cfg, l.deps)
	session.OnFinish(func(domain.QuizResult) { l.onSessionFinished(session) })
	l.session = session
	l.status = domain.QuizActive
	l.mu.Unlock()

	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	l.logger.Info().Int("questions", len(quiz.Questions)).Msg("quiz launched")
	return session, nil
}

// PlayAgain discards the previous session and reopens the full window.
func (l *QuizLauncher) PlayAgain() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return domain.ErrWorkflowClosed
	}
	if l.status == domain.QuizActive || l.launching {
		l.mu.Unlock()
		return domain.ErrWorkflowBusy
	}
	previous := l.session
	l.session = nil
	l.status = domain.QuizReady
	l.available = l.cfg.ExpiresInSeconds
	l.availability.Reset(l.cfg.ExpiresInSeconds)
	l.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

func (l *QuizLauncher) State() LauncherState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LauncherState{
		QuizID:           l.cfg.ID,
		Name:             l.cfg.Name,
		Status:           l.status,
		AvailableSeconds: l.available,
		AvailableText:    countdown.FormatRemaining(l.available),
	}
}

// Session returns the session of the current play-through, if any.
func (l *QuizLauncher) Session() *QuizSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *QuizLauncher) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.availability.Cancel()
	session := l.session
	l.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

func (l *QuizLauncher) onAvailabilityTick(remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == domain.QuizReady {
		l.available = remaining
	}
}

func (l *QuizLauncher) onAvailabilityExpired() {
	l.mu.Lock()
	if l.closed || l.status != domain.QuizReady {
		l.mu.Unlock()
		return
	}
	l.status = domain.QuizExpired
	l.available = 0
	l.mu.Unlock()
	l.logger.Info().Msg("quiz window expired")
}

func (l *QuizLauncher) onSessionFinished(session *QuizSession) {
	l.mu.Lock()
	if l.session != session {
		l.mu.Unlock()
		return
	}
	l.status = domain.QuizFinished
	l.mu.Unlock()
	l.deps.navigate(HomePage)
}
