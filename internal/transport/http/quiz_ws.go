package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"quiz-league-client/internal/app"
	"quiz-league-client/internal/domain"
)

type selectPayload struct {
	Option string `json:"option"`
}

type hapticPayload struct {
	Pattern []int64 `json:"pattern"`
}

type navigatePayload struct {
	Page string `json:"page"`
}

// ServeQuiz runs one daily quiz launcher per connection.
//
// Inbound: start, select, submit, playAgain. Outbound: launcher, snapshot,
// answerResult, result, haptic, navigate, error.
func (h *WSHandler) ServeQuiz(w http.ResponseWriter, r *http.Request) {
	conn, userID, logger, ok := h.upgrade(w, r, "quiz")
	if !ok {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newOutbox(conn, logger)
	var scores app.ScoreUpdater
	if h.deps.Scores != nil {
		scores = h.deps.Scores(userID)
	}

	var launcher *app.QuizLauncher
	launcher = app.NewQuizLauncher(h.deps.Quiz, h.deps.Quizzes, app.Collaborators{
		Scores: scores,
		Navigator: app.NavigatorFunc(func(page string) {
			out.push("navigate", navigatePayload{Page: page})
			out.push("launcher", launcher.State())
		}),
		Haptics: app.HapticsFunc(func(p domain.HapticPattern) {
			out.push("haptic", hapticPayload{Pattern: p.Milliseconds()})
		}),
		Clock:  h.deps.Clock,
		Logger: logger,
	})

	var forwarders sync.WaitGroup
	out.push("launcher", launcher.State())

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			session, err := launcher.Launch(ctx)
			if err != nil {
				out.fail(err, "")
				continue
			}
			forwarders.Add(1)
			go func() {
				defer forwarders.Done()
				forwardSession(session, out)
			}()
		case "select":
			payload, err := decode[selectPayload](inbound.Payload)
			if err != nil {
				out.push("error", errorPayload{Message: "invalid select payload"})
				continue
			}
			session := launcher.Session()
			if session == nil {
				out.fail(domain.ErrSessionNotActive, "")
				continue
			}
			if err := session.SelectAnswer(payload.Option); err != nil {
				out.fail(err, "")
			}
		case "submit":
			session := launcher.Session()
			if session == nil {
				out.fail(domain.ErrSessionNotActive, "")
				continue
			}
			res, err := session.Submit()
			if err != nil {
				out.fail(err, "")
				continue
			}
			out.push("answerResult", res)
		case "playAgain":
			if err := launcher.PlayAgain(); err != nil {
				out.fail(err, "")
				continue
			}
			out.push("launcher", launcher.State())
		default:
			out.push("error", errorPayload{Message: "unsupported message type"})
		}
	}

	cancel()
	launcher.Close()
	forwarders.Wait()
	out.close()
	logQuizDisconnect(logger, launcher)
}

// forwardSession relays snapshots until the session ends, then reports the
// result if it finished normally.
func forwardSession(session *app.QuizSession, out *outbox) {
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()
	for snap := range updates {
		out.push("snapshot", snap)
	}
	if result, ok := session.Result(); ok {
		out.push("result", result)
	}
}

func logQuizDisconnect(logger zerolog.Logger, launcher *app.QuizLauncher) {
	state := launcher.State()
	logger.Info().Str("quiz_id", state.QuizID).Str("status", string(state.Status)).Msg("ws disconnected")
}
