package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"quiz-league-client/internal/domain"
)

const (
	codeAttempts = 10
	searchLimit  = 10
)

// LeagueRepository is an in-process stand-in for the league API. It owns
// league and membership records for offline play and tests, and answers
// with the same errors the server would.
type LeagueRepository struct {
	mu      sync.RWMutex
	leagues map[string]*league
	byCode  map[string]string
	order   []string
	newCode func() string
}

type league struct {
	id          string
	name        string
	description string
	code        string
	private     bool
	creatorID   string
	startsIn    int
	members     map[string]struct{}
	points      map[string]int
}

func NewLeagueRepository(seed []SeedLeague) *LeagueRepository {
	r := &LeagueRepository{
		leagues: make(map[string]*league),
		byCode:  make(map[string]string),
		newCode: domain.GenerateJoinCode,
	}
	for _, s := range seed {
		l := &league{
			id:          s.ID,
			name:        s.Name,
			description: s.Description,
			code:        s.Code,
			private:     s.Private,
			startsIn:    s.StartsIn,
			members:     make(map[string]struct{}, len(s.Members)),
			points:      make(map[string]int),
		}
		for _, m := range s.Members {
			l.members[m] = struct{}{}
		}
		r.insertLocked(l)
	}
	return r
}

func (r *LeagueRepository) CreateLeague(_ context.Context, req domain.CreateLeagueRequest) (domain.CreateLeagueResponse, error) {
	name := strings.TrimSpace(req.Name)
	if len(name) < 3 {
		return domain.CreateLeagueResponse{}, &domain.RemoteDomainError{
			Status:  http.StatusBadRequest,
			Message: "League name must be provided and be at least 3 characters long.",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := &league{
		id:          uuid.NewString(),
		name:        name,
		description: strings.TrimSpace(req.Description),
		private:     !req.IsPublic,
		creatorID:   req.CreatorID,
		members:     map[string]struct{}{req.CreatorID: {}},
		points:      make(map[string]int),
	}
	if l.private {
		code, err := r.uniqueCodeLocked()
		if err != nil {
			return domain.CreateLeagueResponse{}, err
		}
		l.code = code
	}
	r.insertLocked(l)
	return domain.CreateLeagueResponse{LeagueID: l.id, JoinCode: l.code}, nil
}

func (r *LeagueRepository) CheckJoinCode(_ context.Context, code, userID string) (domain.JoinCheckResponse, error) {
	code = domain.NormalizeJoinCode(code)
	if utf8.RuneCountInString(code) != domain.JoinCodeLength {
		return domain.JoinCheckResponse{}, &domain.RemoteDomainError{
			Status:  http.StatusBadRequest,
			Message: "Code must be exactly 6 characters long.",
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.leagues[r.byCode[code]]
	if !ok || !l.private {
		return domain.JoinCheckResponse{}, &domain.RemoteDomainError{
			Status:  http.StatusNotFound,
			Message: "No private league found with that code.",
		}
	}
	_, member := l.members[userID]
	return domain.JoinCheckResponse{
		LeagueID:    l.id,
		Name:        l.name,
		Description: l.description,
		MemberCount: len(l.members),
		IsMember:    member,
	}, nil
}

func (r *LeagueRepository) ConfirmJoin(_ context.Context, leagueID, userID string) (domain.ConfirmJoinResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leagues[leagueID]
	if !ok {
		return domain.ConfirmJoinResponse{}, &domain.RemoteDomainError{
			Status:  http.StatusNotFound,
			Message: "League not found or not private.",
		}
	}
	if _, member := l.members[userID]; member {
		return domain.ConfirmJoinResponse{Message: "You are already a member of this league."}, nil
	}
	l.members[userID] = struct{}{}
	return domain.ConfirmJoinResponse{Message: "Successfully joined the league!"}, nil
}

// SearchPublicLeagues matches name or description case-insensitively.
func (r *LeagueRepository) SearchPublicLeagues(_ context.Context, query string) ([]domain.PublicLeague, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PublicLeague, 0, searchLimit)
	for _, id := range r.order {
		l := r.leagues[id]
		if l.private {
			continue
		}
		if !strings.Contains(strings.ToLower(l.name), query) && !strings.Contains(strings.ToLower(l.description), query) {
			continue
		}
		out = append(out, domain.PublicLeague{
			ID:          l.id,
			Name:        l.name,
			Description: l.description,
			Members:     len(l.members),
			StartsIn:    l.startsIn,
		})
		if len(out) >= searchLimit {
			break
		}
	}
	return out, nil
}

// MyLeagues lists the leagues userID belongs to, largest first.
func (r *LeagueRepository) MyLeagues(_ context.Context, userID string) ([]domain.MemberLeague, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.MemberLeague{}
	for _, id := range r.order {
		l := r.leagues[id]
		if _, ok := l.members[userID]; !ok {
			continue
		}
		out = append(out, domain.MemberLeague{
			ID:          l.id,
			Name:        l.name,
			Description: l.description,
			IsOwner:     l.creatorID == userID,
			Members:     len(l.members),
			Points:      l.points[userID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Members > out[j].Members })
	return out, nil
}

// AddPoints credits points to userID in every league they belong to.
func (r *LeagueRepository) AddPoints(_ context.Context, userID string, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leagues {
		if _, ok := l.members[userID]; ok {
			l.points[userID] += points
		}
	}
	return nil
}

func (r *LeagueRepository) insertLocked(l *league) {
	r.leagues[l.id] = l
	r.order = append(r.order, l.id)
	if l.code != "" {
		r.byCode[l.code] = l.id
	}
}

func (r *LeagueRepository) uniqueCodeLocked() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := r.newCode()
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", &domain.RemoteDomainError{
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("could not allocate a unique league code after %d attempts", codeAttempts),
	}
}
