// Package remote talks to the league/quiz HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"quiz-league-client/internal/domain"
)

// Client is the typed API contract on top of RetryClient.
type Client struct {
	baseURL string
	apiKey  string
	retry   *RetryClient
}

func NewClient(baseURL, apiKey string, retry *RetryClient) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		retry:   retry,
	}
}

// CreateLeague calls POST /api/leagues/create.
func (c *Client) CreateLeague(ctx context.Context, req domain.CreateLeagueRequest) (domain.CreateLeagueResponse, error) {
	var out domain.CreateLeagueResponse
	if err := c.do(ctx, http.MethodPost, "/api/leagues/create", nil, req, &out, "Failed to create league."); err != nil {
		return domain.CreateLeagueResponse{}, err
	}
	if out.LeagueID == "" {
		return domain.CreateLeagueResponse{}, malformed("create league", "league_id")
	}
	return out, nil
}

// CheckJoinCode calls POST /api/leagues/join/check.
func (c *Client) CheckJoinCode(ctx context.Context, code, userID string) (domain.JoinCheckResponse, error) {
	body := map[string]string{"code": code, "user_id": userID}
	var out domain.JoinCheckResponse
	if err := c.do(ctx, http.MethodPost, "/api/leagues/join/check", nil, body, &out, "Invalid or expired league code."); err != nil {
		return domain.JoinCheckResponse{}, err
	}
	// a member answer only needs the league name for the message
	switch {
	case out.LeagueID == "" && !out.IsMember:
		return domain.JoinCheckResponse{}, malformed("join check", "league_id")
	case out.Name == "":
		return domain.JoinCheckResponse{}, malformed("join check", "name")
	}
	return out, nil
}

// ConfirmJoin calls POST /api/leagues/join/confirm.
func (c *Client) ConfirmJoin(ctx context.Context, leagueID, userID string) (domain.ConfirmJoinResponse, error) {
	body := map[string]string{"league_id": leagueID, "user_id": userID}
	var out domain.ConfirmJoinResponse
	if err := c.do(ctx, http.MethodPost, "/api/leagues/join/confirm", nil, body, &out, "Failed to join league."); err != nil {
		return domain.ConfirmJoinResponse{}, err
	}
	return out, nil
}

// SearchPublicLeagues calls GET /api/league/search.
func (c *Client) SearchPublicLeagues(ctx context.Context, query string) ([]domain.PublicLeague, error) {
	if query == "" {
		return nil, nil
	}
	params := url.Values{"query": {query}}
	var out []domain.PublicLeague
	if err := c.do(ctx, http.MethodGet, "/api/league/search", params, nil, &out, "Error searching leagues."); err != nil {
		return nil, err
	}
	for i, l := range out {
		if l.ID == "" || l.Name == "" {
			return nil, malformed("league search", fmt.Sprintf("[%d].id/name", i))
		}
	}
	return out, nil
}

// MyLeagues calls GET /api/leagues/my.
func (c *Client) MyLeagues(ctx context.Context, userID string) ([]domain.MemberLeague, error) {
	params := url.Values{"user_id": {userID}}
	var out []domain.MemberLeague
	if err := c.do(ctx, http.MethodGet, "/api/leagues/my", params, nil, &out, "Error fetching my leagues."); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadQuiz fetches the question set from GET /api/questions.
func (c *Client) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var questions []domain.Question
	if err := c.do(ctx, http.MethodGet, "/api/questions", nil, nil, &questions, "Error fetching questions."); err != nil {
		return domain.Quiz{}, err
	}
	if len(questions) == 0 {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	for i, q := range questions {
		if q.ID == "" || len(q.Options) == 0 || !q.HasOption(q.CorrectAnswer) {
			return domain.Quiz{}, malformed("questions", fmt.Sprintf("[%d]", i))
		}
	}
	return domain.Quiz{ID: quizID, Questions: questions}, nil
}

// SubmitScore calls POST /api/score/submit.
func (c *Client) SubmitScore(ctx context.Context, sub domain.ScoreSubmission) (domain.ScoreStanding, error) {
	var out domain.ScoreStanding
	if err := c.do(ctx, http.MethodPost, "/api/score/submit", nil, sub, &out, "Error submitting score."); err != nil {
		return domain.ScoreStanding{}, err
	}
	return out, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any, fallback string) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.retry.Execute(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg == "" {
			msg = fallback
		}
		return &domain.RemoteDomainError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.RemoteDomainError{Status: resp.StatusCode, Message: fmt.Sprintf("malformed response from %s", path)}
	}
	return nil
}

func malformed(op, field string) error {
	return &domain.RemoteDomainError{Message: fmt.Sprintf("malformed %s response: missing %s", op, field)}
}
