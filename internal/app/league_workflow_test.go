package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"quiz-league-client/internal/app"
	"quiz-league-client/internal/domain"
)

type fakeLeagues struct {
	mu sync.Mutex

	createResp domain.CreateLeagueResponse
	createErr  error
	created    []domain.CreateLeagueRequest

	checkResp domain.JoinCheckResponse
	checkErr  error
	checks    []string

	confirmResp domain.ConfirmJoinResponse
	confirmErr  error
	confirmGate chan struct{}
	confirms    []string

	searchResults map[string][]domain.PublicLeague
	searchErr     error
	searchGates   map[string]chan struct{}
	searches      []string
}

func (f *fakeLeagues) CreateLeague(_ context.Context, req domain.CreateLeagueRequest) (domain.CreateLeagueResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return f.createResp, f.createErr
}

func (f *fakeLeagues) CheckJoinCode(_ context.Context, code, _ string) (domain.JoinCheckResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, code)
	return f.checkResp, f.checkErr
}

func (f *fakeLeagues) ConfirmJoin(_ context.Context, leagueID, _ string) (domain.ConfirmJoinResponse, error) {
	f.mu.Lock()
	f.confirms = append(f.confirms, leagueID)
	gate := f.confirmGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.confirmResp, f.confirmErr
}

func (f *fakeLeagues) SearchPublicLeagues(_ context.Context, query string) ([]domain.PublicLeague, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	gate := f.searchGates[query]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchResults[query], f.searchErr
}

func (f *fakeLeagues) searched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func (f *fakeLeagues) createCalls() []domain.CreateLeagueRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CreateLeagueRequest(nil), f.created...)
}

func (f *fakeLeagues) checkCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.checks...)
}

var today = time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

func newWorkflow(t *testing.T, repo *fakeLeagues, mode domain.LeagueMode) (*app.LeagueWorkflow, *clockwork.FakeClock, *atomic.Int32) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(today)
	refreshes := &atomic.Int32{}
	w := app.NewLeagueWorkflow(repo, "user-1", mode, app.Collaborators{
		Refresher: app.RefresherFunc(func() { refreshes.Add(1) }),
		Clock:     clock,
	})
	t.Cleanup(w.Close)
	return w, clock, refreshes
}

func TestCreateLeagueSuccess(t *testing.T) {
	repo := &fakeLeagues{createResp: domain.CreateLeagueResponse{LeagueID: "L1"}}
	w, clock, refreshes := newWorkflow(t, repo, domain.ModeCreate)

	require.NoError(t, w.SetName("Sunday Legends"))
	require.NoError(t, w.SetDescription("weekend trivia"))
	require.NoError(t, w.SetPrivate(true))
	require.NoError(t, w.SetStartDate(today))
	require.NoError(t, w.SetDurationWeeks(2))

	snap := w.Snapshot()
	require.Equal(t, "2025-03-10", snap.Create.StartDate)
	require.Equal(t, "2025-03-23", snap.Create.EndDate)

	require.NoError(t, w.SubmitCreate(context.Background()))

	calls := repo.createCalls()
	require.Len(t, calls, 1)
	require.Equal(t, domain.CreateLeagueRequest{
		Name:          "Sunday Legends",
		Description:   "weekend trivia",
		IsPublic:      false,
		CreatorID:     "user-1",
		DurationWeeks: 2,
		StartDate:     "2025-03-10",
		EndDate:       "2025-03-23",
	}, calls[0])

	snap = w.Snapshot()
	require.Equal(t, domain.CreateSuccess, snap.Create.Phase)
	require.Len(t, snap.Create.JoinCode, domain.JoinCodeLength)
	require.Equal(t, "League \"Sunday Legends\" created successfully! Share this code: "+snap.Create.JoinCode, snap.Create.Message)
	require.EqualValues(t, 1, refreshes.Load())
	require.ErrorIs(t, w.SetName("other"), domain.ErrWorkflowBusy)

	clock.Advance(app.AutoCloseDelay - time.Millisecond)
	select {
	case <-w.Done():
		t.Fatalf("closed before the auto-close delay")
	case <-time.After(20 * time.Millisecond):
	}
	clock.Advance(time.Millisecond)
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("workflow did not auto-close")
	}
	require.True(t, w.Snapshot().Closed)
}

func TestCreateLeagueUsesServerCode(t *testing.T) {
	repo := &fakeLeagues{createResp: domain.CreateLeagueResponse{LeagueID: "L1", JoinCode: "G8H7P3"}}
	w, _, _ := newWorkflow(t, repo, domain.ModeCreate)
	require.NoError(t, w.SetName("Elite"))
	require.NoError(t, w.SetStartDate(today.AddDate(0, 0, 1)))
	require.NoError(t, w.SetDurationWeeks(1))

	require.NoError(t, w.SubmitCreate(context.Background()))
	require.Equal(t, "G8H7P3", w.Snapshot().Create.JoinCode)
	require.True(t, repo.createCalls()[0].IsPublic)
}

func TestCreateLeagueValidation(t *testing.T) {
	repo := &fakeLeagues{}
	w, _, _ := newWorkflow(t, repo, domain.ModeCreate)

	var verr *domain.ValidationError
	err := w.SubmitCreate(context.Background())
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "League name is required.", verr.Message)
	require.Equal(t, domain.CreateError, w.Snapshot().Create.Phase)

	require.NoError(t, w.SetName("Elite"))
	require.Equal(t, domain.CreateEditing, w.Snapshot().Create.Phase)
	err = w.SubmitCreate(context.Background())
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Both the Number of Game Weeks and Start Date are required.", verr.Message)

	require.NoError(t, w.SetDurationWeeks(3))
	require.NoError(t, w.SetStartDate(today.AddDate(0, 0, -1)))
	err = w.SubmitCreate(context.Background())
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "startDate", verr.Field)

	require.Empty(t, repo.createCalls(), "validation must not reach the network")
}

func TestDurationWeeksOutOfRangeRejected(t *testing.T) {
	w, _, _ := newWorkflow(t, &fakeLeagues{}, domain.ModeCreate)
	require.NoError(t, w.SetStartDate(today))

	var verr *domain.ValidationError
	require.ErrorAs(t, w.SetDurationWeeks(9), &verr)
	snap := w.Snapshot()
	require.Zero(t, snap.Create.Draft.DurationWeeks)
	require.Empty(t, snap.Create.EndDate)

	require.NoError(t, w.SetDurationWeeks(5))
	require.Equal(t, "2025-04-13", w.Snapshot().Create.EndDate)
	require.NoError(t, w.SetDurationWeeks(0))
	require.Empty(t, w.Snapshot().Create.EndDate)
}

func TestCreateLeagueRemoteError(t *testing.T) {
	repo := &fakeLeagues{createErr: &domain.RemoteDomainError{Status: 400, Message: "League name already taken"}}
	w, _, refreshes := newWorkflow(t, repo, domain.ModeCreate)
	require.NoError(t, w.SetName("Elite"))
	require.NoError(t, w.SetStartDate(today))
	require.NoError(t, w.SetDurationWeeks(1))

	require.Error(t, w.SubmitCreate(context.Background()))
	snap := w.Snapshot()
	require.Equal(t, domain.CreateError, snap.Create.Phase)
	require.Equal(t, "League name already taken", snap.Create.Message)
	require.Zero(t, refreshes.Load())

	require.NoError(t, w.SetName("Elite 2"), "draft stays editable after a failure")
}

func TestSetModeResetsLeftMode(t *testing.T) {
	w, _, _ := newWorkflow(t, &fakeLeagues{}, domain.ModeCreate)
	require.NoError(t, w.SetName("Elite"))
	require.ErrorIs(t, w.SetJoinCode("abc"), domain.ErrWorkflowBusy)

	require.NoError(t, w.SetMode(domain.ModeJoin))
	require.NoError(t, w.SetJoinCode("abc123"))
	require.NoError(t, w.SetMode(domain.ModeCreate))

	snap := w.Snapshot()
	require.Empty(t, snap.Create.Draft.Name)
	require.Empty(t, snap.Join.Code)
	require.Equal(t, domain.ModeCreate, snap.Mode)
}

func TestJoinCodeLengthGuard(t *testing.T) {
	repo := &fakeLeagues{}
	w, _, _ := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("ab12"))

	var verr *domain.ValidationError
	require.ErrorAs(t, w.CheckJoinCode(context.Background()), &verr)
	require.Equal(t, "Please enter a 6-character code.", w.Snapshot().Join.Message)
	require.Empty(t, repo.checkCalls())
}

func TestJoinAlreadyMember(t *testing.T) {
	repo := &fakeLeagues{checkResp: domain.JoinCheckResponse{LeagueID: "L9", Name: "X", IsMember: true}}
	w, _, _ := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("g8h7p3"))

	var member *domain.AlreadyMemberError
	require.ErrorAs(t, w.CheckJoinCode(context.Background()), &member)
	snap := w.Snapshot()
	require.Equal(t, domain.JoinError, snap.Join.Phase)
	require.Equal(t, "You are already a member of X.", snap.Join.Message)
	require.Nil(t, snap.Join.League)
	require.Equal(t, []string{"G8H7P3"}, repo.checkCalls())
}

func TestJoinFoundConfirmJoined(t *testing.T) {
	repo := &fakeLeagues{
		checkResp:   domain.JoinCheckResponse{LeagueID: "L9", Name: "Euro Elite", MemberCount: 4},
		confirmResp: domain.ConfirmJoinResponse{Message: "Successfully joined league."},
	}
	w, _, refreshes := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("G8H7P3"))
	require.NoError(t, w.CheckJoinCode(context.Background()))

	snap := w.Snapshot()
	require.Equal(t, domain.JoinFound, snap.Join.Phase)
	require.Equal(t, "Found League: Euro Elite. Confirm to join.", snap.Join.Message)
	require.Zero(t, refreshes.Load())

	require.NoError(t, w.ConfirmJoin(context.Background()))
	snap = w.Snapshot()
	require.Equal(t, domain.JoinJoined, snap.Join.Phase)
	require.Equal(t, "Successfully joined league.", snap.Join.Message)
	require.EqualValues(t, 1, refreshes.Load())
	require.ErrorIs(t, w.ConfirmJoin(context.Background()), domain.ErrWorkflowBusy)
}

func TestCancelJoinFromFound(t *testing.T) {
	repo := &fakeLeagues{checkResp: domain.JoinCheckResponse{LeagueID: "L9", Name: "Euro Elite"}}
	w, _, _ := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("G8H7P3"))
	require.NoError(t, w.CheckJoinCode(context.Background()))

	require.NoError(t, w.CancelJoin())
	snap := w.Snapshot()
	require.Equal(t, domain.JoinIdle, snap.Join.Phase)
	require.Nil(t, snap.Join.League)
	require.Equal(t, "Confirmation cancelled. Enter a new code to search.", snap.Join.Message)
}

func TestNewCodeDuringConfirmationCancelsIt(t *testing.T) {
	gate := make(chan struct{})
	repo := &fakeLeagues{
		checkResp:   domain.JoinCheckResponse{LeagueID: "L9", Name: "Euro Elite"},
		confirmGate: gate,
	}
	w, _, refreshes := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("G8H7P3"))
	require.NoError(t, w.CheckJoinCode(context.Background()))

	done := make(chan error, 1)
	go func() { done <- w.ConfirmJoin(context.Background()) }()
	waitUntil(t, "confirming", func() bool { return w.Snapshot().Join.Phase == domain.JoinConfirming })

	require.NoError(t, w.SetJoinCode("zz99aa"))
	close(gate)
	require.NoError(t, <-done)

	snap := w.Snapshot()
	require.Equal(t, domain.JoinIdle, snap.Join.Phase)
	require.Equal(t, "ZZ99AA", snap.Join.Code)
	require.EqualValues(t, 1, refreshes.Load(), "a completed join still refreshes the list")
}

func TestSearchDebouncesToFinalQuery(t *testing.T) {
	repo := &fakeLeagues{searchResults: map[string][]domain.PublicLeague{
		"euro": {{ID: "p1", Name: "Euro Elite Trivial", Members: 560}},
	}}
	w, clock, _ := newWorkflow(t, repo, domain.ModeJoin)

	for _, q := range []string{"e", "eu", "eur", "euro"} {
		require.NoError(t, w.Search(q))
		clock.Advance(100 * time.Millisecond)
	}
	clock.Advance(app.SearchDebounce)

	waitUntil(t, "search results", func() bool { return len(w.Snapshot().Search.Results) == 1 })
	require.Equal(t, []string{"euro"}, repo.searched())
	require.Equal(t, "euro", w.Snapshot().Search.Query)
}

func TestSearchShortQueryClearsWithoutCall(t *testing.T) {
	repo := &fakeLeagues{}
	w, clock, _ := newWorkflow(t, repo, domain.ModeJoin)

	require.NoError(t, w.Search("eu"))
	clock.Advance(time.Second)
	require.Empty(t, repo.searched())
	require.Empty(t, w.Snapshot().Search.Results)
	require.Equal(t, "eu", w.Snapshot().Search.Query)
}

func TestSearchDiscardsStaleResponses(t *testing.T) {
	gate := make(chan struct{})
	repo := &fakeLeagues{
		searchResults: map[string][]domain.PublicLeague{
			"alpha": {{ID: "a", Name: "Alpha"}},
			"bravo": {{ID: "b", Name: "Bravo"}},
		},
		searchGates: map[string]chan struct{}{"alpha": gate},
	}
	w, clock, _ := newWorkflow(t, repo, domain.ModeJoin)

	require.NoError(t, w.Search("alpha"))
	clock.Advance(app.SearchDebounce)
	waitUntil(t, "alpha in flight", func() bool { return len(repo.searched()) == 1 })

	require.NoError(t, w.Search("bravo"))
	clock.Advance(app.SearchDebounce)
	waitUntil(t, "bravo results", func() bool {
		res := w.Snapshot().Search.Results
		return len(res) == 1 && res[0].ID == "b"
	})

	close(gate)
	time.Sleep(20 * time.Millisecond)
	res := w.Snapshot().Search.Results
	require.Len(t, res, 1)
	require.Equal(t, "b", res[0].ID)
}

func TestCloseStopsEverything(t *testing.T) {
	repo := &fakeLeagues{searchResults: map[string][]domain.PublicLeague{"euro": {{ID: "p1", Name: "Euro"}}}}
	w, clock, _ := newWorkflow(t, repo, domain.ModeJoin)
	updates, cancel := w.Subscribe()
	defer cancel()

	require.NoError(t, w.Search("euro"))
	w.Close()
	clock.Advance(time.Second)

	require.Empty(t, repo.searched())
	require.ErrorIs(t, w.SetJoinCode("abc"), domain.ErrWorkflowClosed)
	require.ErrorIs(t, w.Search("euro"), domain.ErrWorkflowClosed)

	var last domain.LeagueSnapshot
	for snap := range updates {
		last = snap
	}
	require.True(t, last.Closed)
}

func TestJoinCodeLengthCountsCharacters(t *testing.T) {
	repo := &fakeLeagues{checkResp: domain.JoinCheckResponse{LeagueID: "L3", Name: "École"}}
	w, _, _ := newWorkflow(t, repo, domain.ModeJoin)

	require.NoError(t, w.SetJoinCode("abc1234"))
	require.Equal(t, "ABC1234", w.Snapshot().Join.Code)
	var verr *domain.ValidationError
	require.ErrorAs(t, w.CheckJoinCode(context.Background()), &verr)
	require.Equal(t, "Please enter a 6-character code.", w.Snapshot().Join.Message)
	require.Empty(t, repo.checkCalls())

	require.NoError(t, w.SetJoinCode("école1"))
	require.NoError(t, w.CheckJoinCode(context.Background()))
	require.Equal(t, []string{"ÉCOLE1"}, repo.checkCalls())
	require.Equal(t, domain.JoinFound, w.Snapshot().Join.Phase)
}

func TestJoinCheckRemoteError(t *testing.T) {
	repo := &fakeLeagues{checkErr: &domain.RemoteDomainError{Status: 404, Message: "No private league found with that code."}}
	w, _, _ := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("G8H7P3"))

	require.Error(t, w.CheckJoinCode(context.Background()))
	snap := w.Snapshot()
	require.Equal(t, domain.JoinError, snap.Join.Phase)
	require.Equal(t, "No private league found with that code.", snap.Join.Message)
	require.Nil(t, snap.Join.League)
}

func TestConfirmJoinFailure(t *testing.T) {
	repo := &fakeLeagues{
		checkResp:  domain.JoinCheckResponse{LeagueID: "L9", Name: "Euro Elite"},
		confirmErr: &domain.RemoteDomainError{Status: 409, Message: "League is full."},
	}
	w, _, refreshes := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, w.SetJoinCode("G8H7P3"))
	require.NoError(t, w.CheckJoinCode(context.Background()))

	require.Error(t, w.ConfirmJoin(context.Background()))
	snap := w.Snapshot()
	require.Equal(t, domain.JoinError, snap.Join.Phase)
	require.Equal(t, "League is full.", snap.Join.Message)
	require.Nil(t, snap.Join.League)
	require.Zero(t, snap.Refreshes)
	require.Zero(t, refreshes.Load())
	require.ErrorIs(t, w.ConfirmJoin(context.Background()), domain.ErrWorkflowBusy)

	require.NoError(t, w.SetJoinCode("zz99aa"))
	require.Equal(t, domain.JoinIdle, w.Snapshot().Join.Phase)
}

func TestSearchErrorClearsResults(t *testing.T) {
	repo := &fakeLeagues{searchResults: map[string][]domain.PublicLeague{
		"euro": {{ID: "p1", Name: "Euro Elite Trivial"}},
	}}
	w, clock, _ := newWorkflow(t, repo, domain.ModeJoin)

	require.NoError(t, w.Search("euro"))
	clock.Advance(app.SearchDebounce)
	waitUntil(t, "euro results", func() bool { return len(w.Snapshot().Search.Results) == 1 })

	repo.mu.Lock()
	repo.searchErr = &domain.NetworkError{Attempts: 4}
	repo.mu.Unlock()

	require.NoError(t, w.Search("eurovision"))
	clock.Advance(app.SearchDebounce)
	waitUntil(t, "failed search applied", func() bool { return w.Snapshot().Search.Query == "eurovision" })
	require.Empty(t, w.Snapshot().Search.Results)
	require.NotNil(t, w.Snapshot().Search.Results)
}

func TestRefreshesCountedInSnapshot(t *testing.T) {
	repo := &fakeLeagues{
		createResp: domain.CreateLeagueResponse{LeagueID: "L1", JoinCode: "G8H7P3"},
		checkResp:  domain.JoinCheckResponse{LeagueID: "L9", Name: "Euro Elite"},
	}

	create, _, _ := newWorkflow(t, repo, domain.ModeCreate)
	updates, cancel := create.Subscribe()
	defer cancel()
	require.NoError(t, create.SetName("Elite"))
	require.NoError(t, create.SetStartDate(today))
	require.NoError(t, create.SetDurationWeeks(1))
	require.NoError(t, create.SubmitCreate(context.Background()))
	for snap := range updates {
		if snap.Create.Phase == domain.CreateSuccess {
			require.EqualValues(t, 1, snap.Refreshes, "success and refresh land in one snapshot")
			break
		}
		require.Zero(t, snap.Refreshes)
	}

	join, _, _ := newWorkflow(t, repo, domain.ModeJoin)
	require.NoError(t, join.SetJoinCode("G8H7P3"))
	require.NoError(t, join.CheckJoinCode(context.Background()))
	require.Zero(t, join.Snapshot().Refreshes)
	require.NoError(t, join.ConfirmJoin(context.Background()))
	snap := join.Snapshot()
	require.Equal(t, domain.JoinJoined, snap.Join.Phase)
	require.EqualValues(t, 1, snap.Refreshes)
}
