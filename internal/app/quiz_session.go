package app

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/countdown"
	"quiz-league-client/internal/domain"
)

// RevealDelay is how long an answered question stays on screen.
const RevealDelay = 1200 * time.Millisecond

// QuizSession drives one timed play-through of a quiz.
//
// Timer continuations (ticks, timeout, reveal) arrive on clock goroutines and
// are serialised by mu. gen is bumped whenever a pending reveal must no
// longer apply.
type QuizSession struct {
	quiz   domain.Quiz
	cfg    domain.QuizConfig
	deps   Collaborators
	clock  clockwork.Clock
	logger zerolog.Logger

	mu         sync.Mutex
	ctx        context.Context
	stopCtx    func() bool
	status     domain.QuizStatus
	index      int
	score      int
	selection  string
	remaining  int
	lastAnswer domain.AnswerResult
	result     *domain.QuizResult
	timer      *countdown.Countdown
	reveal     *countdown.Delay
	gen        uint64
	closed     bool
	onFinish   []func(domain.QuizResult)
	subs       *hub[domain.QuizSnapshot]
	done       chan struct{}
	doneOnce   sync.Once
}

func NewQuizSession(quiz domain.Quiz, cfg domain.QuizConfig, deps Collaborators) *QuizSession {
	return &QuizSession{
		quiz:      quiz,
		cfg:       cfg,
		deps:      deps,
		clock:     deps.clock(),
		logger:    deps.Logger.With().Str("quiz_id", cfg.ID).Logger(),
		status:    domain.QuizReady,
		remaining: cfg.TimeLimitSeconds,
		subs:      newHub[domain.QuizSnapshot](),
		done:      make(chan struct{}),
	}
}

// OnFinish registers fn to run once with the final result.
func (s *QuizSession) OnFinish(fn func(domain.QuizResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinish = append(s.onFinish, fn)
}

// Start moves Ready to Active and starts the session countdown.
// Cancelling ctx closes the session.
func (s *QuizSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrWorkflowClosed
	}
	if s.status != domain.QuizReady {
		s.mu.Unlock()
		return domain.ErrWorkflowBusy
	}
	s.ctx = ctx
	s.status = domain.QuizActive
	s.index = 0
	s.score = 0
	s.selection = ""
	s.remaining = s.cfg.TimeLimitSeconds

	if len(s.quiz.Questions) == 0 {
		result, hooks := s.finishLocked(0)
		s.mu.Unlock()
		s.complete(result, hooks)
		return nil
	}

	s.timer = countdown.Start(s.clock, s.cfg.TimeLimitSeconds, s.onTick, s.onTimeout)
	s.stopCtx = context.AfterFunc(ctx, s.Close)
	s.subs.publish(s.snapshotLocked())
	s.mu.Unlock()

	s.logger.Debug().Int("questions", len(s.quiz.Questions)).Msg("quiz started")
	return nil
}

// SelectAnswer records the tentative choice for the current question.
func (s *QuizSession) SelectAnswer(option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.status != domain.QuizActive {
		return domain.ErrSessionNotActive
	}
	if !s.quiz.Questions[s.index].HasOption(option) {
		return domain.ErrOptionNotFound
	}
	s.selection = option
	s.subs.publish(s.snapshotLocked())
	return nil
}

// Submit scores the current selection and schedules the reveal.
// Submitting again while the answer is being revealed returns the same
// result without side effects.
func (s *QuizSession) Submit() (domain.AnswerResult, error) {
	s.mu.Lock()
	if s.status == domain.QuizChecking && !s.closed {
		last := s.lastAnswer
		s.mu.Unlock()
		return last, nil
	}
	if s.closed || s.status != domain.QuizActive {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrSessionNotActive
	}
	if s.selection == "" {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrNoSelection
	}

	question := s.quiz.Questions[s.index]
	correct := s.selection == question.CorrectAnswer
	awarded := 0
	pattern := domain.PulseIncorrect
	if correct {
		s.score++
		awarded = s.cfg.PointsPerQuestion
		pattern = domain.PulseCorrect
	}
	s.lastAnswer = domain.AnswerResult{
		QuestionID: question.ID,
		Correct:    correct,
		Awarded:    awarded,
		TotalScore: s.score * s.cfg.PointsPerQuestion,
	}
	s.status = domain.QuizChecking
	s.gen++
	gen := s.gen
	s.reveal = countdown.After(s.clock, RevealDelay, func() { s.advance(gen) })
	answer := s.lastAnswer
	s.subs.publish(s.snapshotLocked())
	s.mu.Unlock()

	s.deps.vibrate(pattern)
	return answer, nil
}

// Close cancels every pending timer and ends all subscriptions.
// A session closed before finishing reports no result.
func (s *QuizSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.stopTimersLocked()
	s.subs.closeAll()
	s.mu.Unlock()
	s.release()
}

// Subscribe returns a channel of snapshots primed with the current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizSession) Subscribe() (<-chan domain.QuizSnapshot, func()) {
	s.mu.Lock()
	ch := s.subs.add(s.snapshotLocked())
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		s.subs.remove(ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *QuizSession) Snapshot() domain.QuizSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Result returns the final result once the session finished.
func (s *QuizSession) Result() (domain.QuizResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.QuizResult{}, false
	}
	return *s.result, true
}

// Done is closed after the session finished and reported, or was closed.
func (s *QuizSession) Done() <-chan struct{} {
	return s.done
}

func (s *QuizSession) onTick(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.inPlayLocked() {
		return
	}
	s.remaining = remaining
	s.subs.publish(s.snapshotLocked())
}

func (s *QuizSession) onTimeout() {
	s.mu.Lock()
	if s.closed || !s.inPlayLocked() {
		s.mu.Unlock()
		return
	}
	s.remaining = 0
	result, hooks := s.finishLocked(s.index + 1)
	s.mu.Unlock()
	s.logger.Info().Int("answered", result.Answered).Msg("quiz timed out")
	s.complete(result, hooks)
}

func (s *QuizSession) advance(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.status != domain.QuizChecking {
		s.mu.Unlock()
		return
	}
	s.reveal = nil
	if s.index+1 >= len(s.quiz.Questions) {
		result, hooks := s.finishLocked(s.index + 1)
		s.mu.Unlock()
		s.complete(result, hooks)
		return
	}
	s.index++
	s.selection = ""
	s.status = domain.QuizActive
	s.subs.publish(s.snapshotLocked())
	s.mu.Unlock()
}

// finishLocked enters Finished. It runs at most once per session because
// every caller requires an in-play status.
func (s *QuizSession) finishLocked(answered int) (domain.QuizResult, []func(domain.QuizResult)) {
	s.gen++
	s.stopTimersLocked()
	s.status = domain.QuizFinished
	s.selection = ""

	total := len(s.quiz.Questions)
	if answered > total {
		answered = total
	}
	result := domain.QuizResult{
		Answered: answered,
		Correct:  s.score,
		Points:   s.score * s.cfg.PointsPerQuestion,
		Accuracy: accuracy(s.score, total),
		Total:    total,
	}
	s.result = &result
	s.subs.publish(s.snapshotLocked())

	hooks := append([]func(domain.QuizResult){}, s.onFinish...)
	return result, hooks
}

// complete reports a finished session. It runs outside the lock.
func (s *QuizSession) complete(result domain.QuizResult, hooks []func(domain.QuizResult)) {
	if s.deps.Scores != nil {
		if err := s.deps.Scores.UpdateScore(s.ctx, result.Points); err != nil {
			s.logger.Warn().Err(err).Int("points", result.Points).Msg("score update failed")
		}
	}
	for _, fn := range hooks {
		fn(result)
	}
	s.logger.Info().
		Int("correct", result.Correct).
		Int("total", result.Total).
		Int("points", result.Points).
		Msg("quiz finished")

	s.mu.Lock()
	s.subs.closeAll()
	s.mu.Unlock()
	s.release()
}

func (s *QuizSession) release() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		stop := s.stopCtx
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		close(s.done)
	})
}

func (s *QuizSession) stopTimersLocked() {
	if s.timer != nil {
		s.timer.Cancel()
	}
	s.reveal.Cancel()
	s.reveal = nil
}

func (s *QuizSession) inPlayLocked() bool {
	return s.status == domain.QuizActive || s.status == domain.QuizChecking
}

func (s *QuizSession) snapshotLocked() domain.QuizSnapshot {
	snap := domain.QuizSnapshot{
		QuizID:           s.cfg.ID,
		Status:           s.status,
		QuestionIndex:    s.index,
		Total:            len(s.quiz.Questions),
		Selection:        s.selection,
		Score:            s.score,
		RemainingSeconds: s.remaining,
	}
	if s.inPlayLocked() {
		q := s.quiz.Questions[s.index]
		if s.status != domain.QuizChecking {
			q.CorrectAnswer = ""
		}
		snap.Question = &q
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	return snap
}

func accuracy(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}
