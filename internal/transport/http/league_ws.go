package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"quiz-league-client/internal/app"
	"quiz-league-client/internal/domain"
)

type modePayload struct {
	Mode domain.LeagueMode `json:"mode"`
}

// draftPayload carries only the fields the user edited.
type draftPayload struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Private       *bool   `json:"private"`
	DurationWeeks *int    `json:"durationWeeks"`
	StartDate     *string `json:"startDate"`
}

type codePayload struct {
	Code string `json:"code"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type refreshPayload struct {
	Leagues []domain.MemberLeague `json:"leagues"`
}

// ServeLeague runs one league onboarding workflow per connection.
//
// Inbound: mode, draft, create, code, check, confirm, cancel, search, close.
// Outbound: league, search, refresh, closed, error.
func (h *WSHandler) ServeLeague(w http.ResponseWriter, r *http.Request) {
	conn, userID, logger, ok := h.upgrade(w, r, "league")
	if !ok {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newOutbox(conn, logger)
	var calls sync.WaitGroup

	// refresh runs on the forwarding goroutine so the list always follows
	// the snapshot reporting the membership change.
	refresh := func() {
		payload := refreshPayload{Leagues: []domain.MemberLeague{}}
		if h.deps.Lister != nil {
			leagues, err := h.deps.Lister.MyLeagues(ctx, userID)
			if err != nil {
				logger.Warn().Err(err).Msg("league refresh failed")
			} else if leagues != nil {
				payload.Leagues = leagues
			}
		}
		out.push("refresh", payload)
	}

	mode := domain.LeagueMode(r.URL.Query().Get("mode"))
	workflow := app.NewLeagueWorkflow(h.deps.Leagues, userID, mode, app.Collaborators{
		Clock:  h.deps.Clock,
		Logger: logger,
	})

	calls.Add(1)
	go func() {
		defer calls.Done()
		forwardLeague(workflow, out, refresh)
	}()

	// background runs a network action without blocking the read loop.
	background := func(fn func(context.Context) error) {
		calls.Add(1)
		go func() {
			defer calls.Done()
			if err := fn(ctx); err != nil {
				logger.Debug().Err(err).Msg("league action failed")
				out.fail(err, "")
			}
		}()
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var err error
		bad := func(decodeErr error) bool {
			if decodeErr != nil {
				err = &domain.ValidationError{Field: inbound.Type, Message: "invalid " + inbound.Type + " payload"}
				return true
			}
			return false
		}
		switch inbound.Type {
		case "mode":
			if p, decodeErr := decode[modePayload](inbound.Payload); !bad(decodeErr) {
				err = workflow.SetMode(p.Mode)
			}
		case "draft":
			if p, decodeErr := decode[draftPayload](inbound.Payload); !bad(decodeErr) {
				err = applyDraft(workflow, p)
			}
		case "create":
			background(workflow.SubmitCreate)
		case "code":
			if p, decodeErr := decode[codePayload](inbound.Payload); !bad(decodeErr) {
				err = workflow.SetJoinCode(p.Code)
			}
		case "check":
			background(workflow.CheckJoinCode)
		case "confirm":
			background(workflow.ConfirmJoin)
		case "cancel":
			err = workflow.CancelJoin()
		case "search":
			if p, decodeErr := decode[searchPayload](inbound.Payload); !bad(decodeErr) {
				err = workflow.Search(p.Query)
			}
		case "close":
			workflow.Close()
		default:
			out.push("error", errorPayload{Message: "unsupported message type"})
		}
		if err != nil {
			out.fail(err, "")
		}
	}

	cancel()
	workflow.Close()
	calls.Wait()
	out.close()
	logger.Info().Msg("ws disconnected")
}

func applyDraft(workflow *app.LeagueWorkflow, p draftPayload) error {
	if p.Name != nil {
		if err := workflow.SetName(*p.Name); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := workflow.SetDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Private != nil {
		if err := workflow.SetPrivate(*p.Private); err != nil {
			return err
		}
	}
	if p.DurationWeeks != nil {
		if err := workflow.SetDurationWeeks(*p.DurationWeeks); err != nil {
			return err
		}
	}
	if p.StartDate != nil {
		var start time.Time
		if *p.StartDate != "" {
			parsed, err := domain.ParseDate(*p.StartDate)
			if err != nil {
				return &domain.ValidationError{Field: "startDate", Message: "Start date must be YYYY-MM-DD."}
			}
			start = parsed
		}
		if err := workflow.SetStartDate(start); err != nil {
			return err
		}
	}
	return nil
}

// forwardLeague relays snapshots until the workflow closes. A search event
// follows every newly applied search result and a refresh event follows
// every membership change.
func forwardLeague(workflow *app.LeagueWorkflow, out *outbox, refresh func()) {
	updates, unsubscribe := workflow.Subscribe()
	defer unsubscribe()
	var lastSeq, lastRefresh uint64
	for snap := range updates {
		out.push("league", snap)
		if snap.Refreshes != lastRefresh {
			lastRefresh = snap.Refreshes
			refresh()
		}
		if snap.Search.Seq != lastSeq {
			lastSeq = snap.Search.Seq
			out.push("search", snap.Search)
		}
		if snap.Closed {
			out.push("closed", struct{}{})
		}
	}
}
