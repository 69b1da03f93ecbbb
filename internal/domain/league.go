package domain

import (
	"math/rand"
	"strings"
	"time"
)

const (
	// JoinCodeLength is the length of private league codes.
	JoinCodeLength = 6
	// MinDurationWeeks and MaxDurationWeeks bound a league's length.
	MinDurationWeeks = 1
	MaxDurationWeeks = 5
	// DateLayout is the wire format of league dates.
	DateLayout = "2006-01-02"
)

// LeagueDraft is the editable form state of a league being created.
// EndDate is derived from StartDate and DurationWeeks and never edited.
type LeagueDraft struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	IsPrivate     bool      `json:"isPrivate"`
	DurationWeeks int       `json:"durationWeeks,omitempty"`
	StartDate     time.Time `json:"-"`
	EndDate       time.Time `json:"-"`
}

// Recompute refreshes EndDate from the current inputs.
func (d *LeagueDraft) Recompute() {
	end, ok := LeagueEndDate(d.StartDate, d.DurationWeeks)
	if !ok {
		d.EndDate = time.Time{}
		return
	}
	d.EndDate = end
}

// ValidWeeks reports whether weeks is an allowed league length.
func ValidWeeks(weeks int) bool {
	return weeks >= MinDurationWeeks && weeks <= MaxDurationWeeks
}

// LeagueEndDate returns the last day of the final game week:
// start + 7*weeks - 1 days. It reports false when an input is missing
// or the week count is out of range.
func LeagueEndDate(start time.Time, weeks int) (time.Time, bool) {
	if start.IsZero() || !ValidWeeks(weeks) {
		return time.Time{}, false
	}
	return CivilDate(start).AddDate(0, 0, 7*weeks-1), true
}

// CivilDate truncates t to its calendar day in UTC.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar day, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, raw, time.UTC)
}

// LeagueMode selects which onboarding sub-machine is active.
type LeagueMode string

const (
	ModeCreate LeagueMode = "create"
	ModeJoin   LeagueMode = "join"
)

// CreatePhase is the state of the create sub-machine.
type CreatePhase string

const (
	CreateEditing    CreatePhase = "editing"
	CreateSubmitting CreatePhase = "submitting"
	CreateSuccess    CreatePhase = "success"
	CreateError      CreatePhase = "error"
)

// JoinPhase is the state of the join sub-machine.
type JoinPhase string

const (
	JoinIdle       JoinPhase = "idle"
	JoinChecking   JoinPhase = "checking"
	JoinFound      JoinPhase = "found"
	JoinConfirming JoinPhase = "confirming"
	JoinJoined     JoinPhase = "joined"
	JoinError      JoinPhase = "error"
)

// CreateLeagueRequest is the body of POST /api/leagues/create.
type CreateLeagueRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	IsPublic      bool   `json:"is_public"`
	CreatorID     string `json:"creator_id"`
	DurationWeeks int    `json:"duration_weeks"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
}

// CreateLeagueResponse is returned by a successful create.
type CreateLeagueResponse struct {
	LeagueID string `json:"league_id"`
	JoinCode string `json:"join_code"`
}

// JoinCheckResponse describes the league behind a join code.
type JoinCheckResponse struct {
	LeagueID    string `json:"league_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
	IsMember    bool   `json:"is_member"`
}

// ConfirmJoinResponse is returned by a successful join confirmation.
type ConfirmJoinResponse struct {
	Message string `json:"message"`
}

// PublicLeague is one public search hit.
type PublicLeague struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
	StartsIn    int    `json:"startsIn"`
}

// MemberLeague is a league the user belongs to.
type MemberLeague struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsOwner     bool   `json:"isOwner"`
	Members     int    `json:"members"`
	Points      int    `json:"points"`
}

// CreateState is the observable state of the create sub-machine.
type CreateState struct {
	Phase     CreatePhase `json:"phase"`
	Draft     LeagueDraft `json:"draft"`
	StartDate string      `json:"startDate,omitempty"`
	EndDate   string      `json:"endDate,omitempty"`
	Message   string      `json:"message,omitempty"`
	LeagueID  string      `json:"leagueId,omitempty"`
	JoinCode  string      `json:"joinCode,omitempty"`
}

// JoinState is the observable state of the join sub-machine.
type JoinState struct {
	Code    string             `json:"code"`
	Phase   JoinPhase          `json:"phase"`
	League  *JoinCheckResponse `json:"league,omitempty"`
	Message string             `json:"message,omitempty"`
}

// SearchState holds the results of the latest public league search.
type SearchState struct {
	Seq     uint64         `json:"seq"`
	Query   string         `json:"query"`
	Results []PublicLeague `json:"results"`
}

// LeagueSnapshot is a read-only view of the onboarding workflow.
// Refreshes counts the membership changes made so far; it is bumped in the
// same snapshot that reports the create success or the join.
type LeagueSnapshot struct {
	Mode      LeagueMode  `json:"mode"`
	Create    CreateState `json:"create"`
	Join      JoinState   `json:"join"`
	Search    SearchState `json:"search"`
	Refreshes uint64      `json:"refreshes"`
	Closed    bool        `json:"closed"`
}

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateJoinCode returns a random private league code.
func GenerateJoinCode() string {
	b := make([]byte, JoinCodeLength)
	for i := range b {
		b[i] = joinCodeAlphabet[rand.Intn(len(joinCodeAlphabet))]
	}
	return string(b)
}

// NormalizeJoinCode trims and uppercases raw. Over-long input is kept so the
// length check can reject it.
func NormalizeJoinCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
