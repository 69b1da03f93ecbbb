package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/countdown"
	"quiz-league-client/internal/domain"
)

// AutoCloseDelay is how long a successful create stays visible.
const AutoCloseDelay = 4000 * time.Millisecond

const (
	msgNameRequired   = "League name is required."
	msgScheduleNeeded = "Both the Number of Game Weeks and Start Date are required."
	msgWeeksRange     = "Number of Game Weeks must be between 1 and 5."
	msgStartInPast    = "Start date cannot be in the past."
	msgEndDate        = "Error calculating end date. Please check your start date selection."
	msgCodeLength     = "Please enter a 6-character code."
	msgJoinCancelled  = "Confirmation cancelled. Enter a new code to search."

	fallbackCreate  = "Error creating league. Check server connection."
	fallbackCheck   = "League not found or code is invalid."
	fallbackConfirm = "Error confirming join request."
)

// LeagueWorkflow is the league onboarding state machine: a create
// sub-machine, a join sub-machine and a debounced public search sharing one
// scope. Switching mode resets the state of the mode being left.
//
// Network calls run on the caller's goroutine without holding mu; their
// results are applied only if the sub-machine generation is unchanged.
type LeagueWorkflow struct {
	repo   LeagueRepository
	userID string
	deps   Collaborators
	clock  clockwork.Clock
	logger zerolog.Logger
	search *LeagueSearch

	mu        sync.Mutex
	mode      domain.LeagueMode
	create    domain.CreateState
	join      domain.JoinState
	searchRes domain.SearchState
	createGen uint64
	joinGen   uint64
	refreshes uint64
	autoClose *countdown.Delay
	closed    bool
	subs      *hub[domain.LeagueSnapshot]
	done      chan struct{}
}

func NewLeagueWorkflow(repo LeagueRepository, userID string, mode domain.LeagueMode, deps Collaborators) *LeagueWorkflow {
	if mode != domain.ModeJoin {
		mode = domain.ModeCreate
	}
	w := &LeagueWorkflow{
		repo:   repo,
		userID: userID,
		deps:   deps,
		clock:  deps.clock(),
		logger: deps.Logger.With().Str("user_id", userID).Logger(),
		mode:   mode,
		create: domain.CreateState{Phase: domain.CreateEditing},
		join:   domain.JoinState{Phase: domain.JoinIdle},
		subs:   newHub[domain.LeagueSnapshot](),
		done:   make(chan struct{}),
	}
	w.searchRes = domain.SearchState{Results: []domain.PublicLeague{}}
	w.search = NewLeagueSearch(repo, deps, w.applySearch)
	return w
}

// SetMode switches between create and join, resetting the mode being left.
func (w *LeagueWorkflow) SetMode(mode domain.LeagueMode) error {
	if mode != domain.ModeCreate && mode != domain.ModeJoin {
		return &domain.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", mode)}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return domain.ErrWorkflowClosed
	}
	if mode == w.mode {
		return nil
	}
	if w.mode == domain.ModeCreate {
		w.resetCreateLocked()
	} else {
		w.resetJoinLocked()
	}
	w.mode = mode
	w.subs.publish(w.snapshotLocked())
	return nil
}

func (w *LeagueWorkflow) SetName(name string) error {
	return w.editDraft(func(d *domain.LeagueDraft) error {
		d.Name = name
		return nil
	})
}

func (w *LeagueWorkflow) SetDescription(description string) error {
	return w.editDraft(func(d *domain.LeagueDraft) error {
		d.Description = description
		return nil
	})
}

func (w *LeagueWorkflow) SetPrivate(private bool) error {
	return w.editDraft(func(d *domain.LeagueDraft) error {
		d.IsPrivate = private
		return nil
	})
}

// SetDurationWeeks sets the league length. Zero clears it; any other value
// outside 1..5 is rejected and leaves the draft untouched.
func (w *LeagueWorkflow) SetDurationWeeks(weeks int) error {
	return w.editDraft(func(d *domain.LeagueDraft) error {
		if weeks != 0 && !domain.ValidWeeks(weeks) {
			return &domain.ValidationError{Field: "durationWeeks", Message: msgWeeksRange}
		}
		d.DurationWeeks = weeks
		return nil
	})
}

// SetStartDate sets the first league day. The zero time clears it.
func (w *LeagueWorkflow) SetStartDate(start time.Time) error {
	return w.editDraft(func(d *domain.LeagueDraft) error {
		if start.IsZero() {
			d.StartDate = time.Time{}
			return nil
		}
		d.StartDate = domain.CivilDate(start)
		return nil
	})
}

// SubmitCreate validates the draft and creates the league.
func (w *LeagueWorkflow) SubmitCreate(ctx context.Context) error {
	w.mu.Lock()
	if err := w.createEditableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	draft := w.create.Draft
	if verr := w.validateLocked(draft); verr != nil {
		w.create.Phase = domain.CreateError
		w.create.Message = verr.Message
		w.subs.publish(w.snapshotLocked())
		w.mu.Unlock()
		return verr
	}
	w.create.Phase = domain.CreateSubmitting
	w.create.Message = ""
	w.createGen++
	gen := w.createGen
	w.subs.publish(w.snapshotLocked())
	w.mu.Unlock()

	resp, err := w.repo.CreateLeague(ctx, domain.CreateLeagueRequest{
		Name:          draft.Name,
		Description:   draft.Description,
		IsPublic:      !draft.IsPrivate,
		CreatorID:     w.userID,
		DurationWeeks: draft.DurationWeeks,
		StartDate:     domain.FormatDate(draft.StartDate),
		EndDate:       domain.FormatDate(draft.EndDate),
	})

	w.mu.Lock()
	if w.closed || gen != w.createGen {
		w.mu.Unlock()
		w.logger.Debug().Msg("discarding stale create result")
		return nil
	}
	if err != nil {
		w.create.Phase = domain.CreateError
		w.create.Message = domain.UserMessage(err, fallbackCreate)
		w.subs.publish(w.snapshotLocked())
		w.mu.Unlock()
		w.logger.Warn().Err(err).Msg("create league failed")
		return err
	}

	code := resp.JoinCode
	if code == "" {
		code = domain.GenerateJoinCode()
	}
	w.create.Phase = domain.CreateSuccess
	w.create.LeagueID = resp.LeagueID
	w.create.JoinCode = code
	w.create.Message = fmt.Sprintf("League \"%s\" created successfully! Share this code: %s", draft.Name, code)
	w.autoClose = countdown.After(w.clock, AutoCloseDelay, func() { w.closeAfterCreate(gen) })
	w.refreshes++
	w.subs.publish(w.snapshotLocked())
	w.mu.Unlock()

	w.logger.Info().Str("league_id", resp.LeagueID).Msg("league created")
	w.deps.refresh()
	return nil
}

// SetJoinCode replaces the code being entered. Any lookup or confirmation
// in progress is abandoned and the join sub-machine returns to Idle.
func (w *LeagueWorkflow) SetJoinCode(raw string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.joinActiveLocked(); err != nil {
		return err
	}
	w.joinGen++
	w.join = domain.JoinState{Code: domain.NormalizeJoinCode(raw), Phase: domain.JoinIdle}
	w.subs.publish(w.snapshotLocked())
	return nil
}

// CheckJoinCode looks up the league behind the entered code.
func (w *LeagueWorkflow) CheckJoinCode(ctx context.Context) error {
	w.mu.Lock()
	if err := w.joinActiveLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	switch w.join.Phase {
	case domain.JoinIdle, domain.JoinError, domain.JoinFound:
	default:
		w.mu.Unlock()
		return domain.ErrWorkflowBusy
	}
	code := w.join.Code
	if utf8.RuneCountInString(code) != domain.JoinCodeLength {
		w.join.Phase = domain.JoinError
		w.join.League = nil
		w.join.Message = msgCodeLength
		w.subs.publish(w.snapshotLocked())
		w.mu.Unlock()
		return &domain.ValidationError{Field: "code", Message: msgCodeLength}
	}
	w.joinGen++
	gen := w.joinGen
	w.join.Phase = domain.JoinChecking
	w.join.League = nil
	w.join.Message = ""
	w.subs.publish(w.snapshotLocked())
	w.mu.Unlock()

	resp, err := w.repo.CheckJoinCode(ctx, code, w.userID)
	if err == nil && resp.IsMember {
		err = &domain.AlreadyMemberError{League: resp.Name}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.joinGen {
		return nil
	}
	if err != nil {
		w.join.Phase = domain.JoinError
		w.join.Message = domain.UserMessage(err, fallbackCheck)
		w.subs.publish(w.snapshotLocked())
		return err
	}
	w.join.Phase = domain.JoinFound
	w.join.League = &resp
	w.join.Message = fmt.Sprintf("Found League: %s. Confirm to join.", resp.Name)
	w.subs.publish(w.snapshotLocked())
	return nil
}

// ConfirmJoin joins the league found by CheckJoinCode.
func (w *LeagueWorkflow) ConfirmJoin(ctx context.Context) error {
	w.mu.Lock()
	if err := w.joinActiveLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.join.Phase != domain.JoinFound || w.join.League == nil {
		w.mu.Unlock()
		return domain.ErrWorkflowBusy
	}
	league := *w.join.League
	w.joinGen++
	gen := w.joinGen
	w.join.Phase = domain.JoinConfirming
	w.join.Message = ""
	w.subs.publish(w.snapshotLocked())
	w.mu.Unlock()

	resp, err := w.repo.ConfirmJoin(ctx, league.LeagueID, w.userID)

	w.mu.Lock()
	if w.closed || gen != w.joinGen {
		if err == nil && !w.closed {
			// the membership changed server-side even though the user moved on
			w.refreshes++
			w.subs.publish(w.snapshotLocked())
		}
		w.mu.Unlock()
		if err == nil {
			w.deps.refresh()
		}
		return nil
	}
	if err != nil {
		w.join.Phase = domain.JoinError
		w.join.League = nil
		w.join.Message = domain.UserMessage(err, fallbackConfirm)
		w.subs.publish(w.snapshotLocked())
		w.mu.Unlock()
		w.logger.Warn().Err(err).Str("league_id", league.LeagueID).Msg("confirm join failed")
		return err
	}
	w.join.Phase = domain.JoinJoined
	w.join.Message = resp.Message
	if w.join.Message == "" {
		w.join.Message = fmt.Sprintf("You successfully joined %s!", league.Name)
	}
	w.refreshes++
	w.subs.publish(w.snapshotLocked())
	w.mu.Unlock()

	w.logger.Info().Str("league_id", league.LeagueID).Msg("league joined")
	w.deps.refresh()
	return nil
}

// CancelJoin abandons a found league or a pending confirmation.
func (w *LeagueWorkflow) CancelJoin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.joinActiveLocked(); err != nil {
		return err
	}
	if w.join.Phase != domain.JoinFound && w.join.Phase != domain.JoinConfirming {
		return nil
	}
	w.joinGen++
	w.join.Phase = domain.JoinIdle
	w.join.League = nil
	w.join.Message = msgJoinCancelled
	w.subs.publish(w.snapshotLocked())
	return nil
}

// Search feeds the debounced public league search.
func (w *LeagueWorkflow) Search(query string) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return domain.ErrWorkflowClosed
	}
	w.search.Update(query)
	return nil
}

// Close ends the workflow: timers are cancelled, in-flight results are
// dropped and subscribers receive a final closed snapshot.
func (w *LeagueWorkflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closeLocked()
	w.mu.Unlock()
	w.search.Close()
}

// Done is closed when the workflow closes, including the auto-close after
// a successful create.
func (w *LeagueWorkflow) Done() <-chan struct{} {
	return w.done
}

func (w *LeagueWorkflow) Snapshot() domain.LeagueSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Subscribe returns a channel of snapshots primed with the current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (w *LeagueWorkflow) Subscribe() (<-chan domain.LeagueSnapshot, func()) {
	w.mu.Lock()
	ch := w.subs.add(w.snapshotLocked())
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		w.subs.remove(ch)
		w.mu.Unlock()
	}
	return ch, cancel
}

func (w *LeagueWorkflow) editDraft(fn func(*domain.LeagueDraft) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.createEditableLocked(); err != nil {
		return err
	}
	draft := w.create.Draft
	if err := fn(&draft); err != nil {
		return err
	}
	draft.Recompute()
	w.create.Draft = draft
	if w.create.Phase == domain.CreateError {
		w.create.Phase = domain.CreateEditing
		w.create.Message = ""
	}
	w.subs.publish(w.snapshotLocked())
	return nil
}

func (w *LeagueWorkflow) createEditableLocked() error {
	switch {
	case w.closed:
		return domain.ErrWorkflowClosed
	case w.mode != domain.ModeCreate:
		return domain.ErrWorkflowBusy
	case w.create.Phase != domain.CreateEditing && w.create.Phase != domain.CreateError:
		return domain.ErrWorkflowBusy
	}
	return nil
}

func (w *LeagueWorkflow) joinActiveLocked() error {
	switch {
	case w.closed:
		return domain.ErrWorkflowClosed
	case w.mode != domain.ModeJoin:
		return domain.ErrWorkflowBusy
	}
	return nil
}

func (w *LeagueWorkflow) validateLocked(d domain.LeagueDraft) *domain.ValidationError {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return &domain.ValidationError{Field: "name", Message: msgNameRequired}
	case d.DurationWeeks == 0 || d.StartDate.IsZero():
		return &domain.ValidationError{Field: "schedule", Message: msgScheduleNeeded}
	case !domain.ValidWeeks(d.DurationWeeks):
		return &domain.ValidationError{Field: "durationWeeks", Message: msgWeeksRange}
	case d.StartDate.Before(domain.CivilDate(w.clock.Now())):
		return &domain.ValidationError{Field: "startDate", Message: msgStartInPast}
	case d.EndDate.IsZero():
		return &domain.ValidationError{Field: "endDate", Message: msgEndDate}
	}
	return nil
}

func (w *LeagueWorkflow) resetCreateLocked() {
	w.createGen++
	w.autoClose.Cancel()
	w.autoClose = nil
	w.create = domain.CreateState{Phase: domain.CreateEditing}
}

func (w *LeagueWorkflow) resetJoinLocked() {
	w.joinGen++
	w.join = domain.JoinState{Phase: domain.JoinIdle}
}

func (w *LeagueWorkflow) closeAfterCreate(gen uint64) {
	w.mu.Lock()
	if w.closed || gen != w.createGen {
		w.mu.Unlock()
		return
	}
	w.closeLocked()
	w.mu.Unlock()
	w.search.Close()
}

func (w *LeagueWorkflow) closeLocked() {
	w.closed = true
	w.createGen++
	w.joinGen++
	w.autoClose.Cancel()
	w.autoClose = nil
	w.subs.publish(w.snapshotLocked())
	w.subs.closeAll()
	close(w.done)
}

func (w *LeagueWorkflow) applySearch(state domain.SearchState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.searchRes = state
	w.subs.publish(w.snapshotLocked())
}

func (w *LeagueWorkflow) snapshotLocked() domain.LeagueSnapshot {
	create := w.create
	create.StartDate = domain.FormatDate(create.Draft.StartDate)
	create.EndDate = domain.FormatDate(create.Draft.EndDate)
	join := w.join
	if join.League != nil {
		league := *join.League
		join.League = &league
	}
	search := w.searchRes
	search.Results = append([]domain.PublicLeague{}, search.Results...)
	return domain.LeagueSnapshot{
		Mode:      w.mode,
		Create:    create,
		Join:      join,
		Search:    search,
		Refreshes: w.refreshes,
		Closed:    w.closed,
	}
}
