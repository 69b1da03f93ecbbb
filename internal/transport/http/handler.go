package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"quiz-league-client/internal/app"
	"quiz-league-client/internal/domain"
)

// LeagueLister lists the leagues a user belongs to. It is optional; without
// it refresh events carry no league list.
type LeagueLister interface {
	MyLeagues(ctx context.Context, userID string) ([]domain.MemberLeague, error)
}

// Deps are the repositories shared by every websocket connection.
type Deps struct {
	Quizzes app.QuizRepository
	Leagues app.LeagueRepository
	Lister  LeagueLister
	Quiz    domain.QuizConfig
	// Scores returns the score sink for one user; nil disables reporting.
	Scores func(userID string) app.ScoreUpdater
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// WSHandler bridges the quiz and league workflows to websocket clients.
// Every connection owns its own launcher or league workflow.
type WSHandler struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewWSHandler(deps Deps) *WSHandler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &WSHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of the mux.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket routes on mux.
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/quiz", h.ServeQuiz)
	mux.HandleFunc("/ws/league", h.ServeLeague)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// outbox serializes writes to one connection. Pushes after close are
// dropped, so workflow callbacks that outlive the read loop are harmless.
type outbox struct {
	mu     sync.Mutex
	closed bool
	send   chan outboundMessage[any]
	done   chan struct{}
}

func newOutbox(conn *websocket.Conn, logger zerolog.Logger) *outbox {
	o := &outbox{
		send: make(chan outboundMessage[any], 32),
		done: make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		broken := false
		for msg := range o.send {
			if broken {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write error")
				broken = true
			}
		}
	}()
	return o
}

func (o *outbox) push(typ string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.send <- outboundMessage[any]{Type: typ, Payload: payload}
}

func (o *outbox) fail(err error, fallback string) {
	if fallback == "" {
		fallback = err.Error()
	}
	o.push("error", errorPayload{Message: domain.UserMessage(err, fallback)})
}

// close flushes queued messages and waits for the writer to exit.
func (o *outbox) close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.send)
	}
	o.mu.Unlock()
	<-o.done
}

// upgrade validates userId and upgrades the request. It returns a
// connection-scoped logger.
func (h *WSHandler) upgrade(w http.ResponseWriter, r *http.Request, route string) (*websocket.Conn, string, zerolog.Logger, bool) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return nil, "", zerolog.Nop(), false
	}
	logger := h.deps.Logger.With().
		Str("route", route).
		Str("user_id", userID).
		Str("conn_id", uuid.NewString()).
		Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return nil, "", logger, false
	}
	logger.Info().Msg("ws connected")
	return conn, userID, logger, true
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
