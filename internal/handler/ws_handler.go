package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// eventBuffer bounds the per-connection event queue. Ticks are dropped when a
// client falls this far behind; state-changing events never are.
const eventBuffer = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt: commands in, engine events out.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=
func (h *WSHandler) AttemptStream(c *gin.Context) {
	id, ok := parseAttemptID(c)
	if !ok {
		return
	}
	a, err := h.attempts.Get(id)
	if err != nil {
		response.FailError(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("attempt_id", id.String()).Logger()
	wsLog.Info().Msg("Candidate connected")

	events := make(chan engine.Event, eventBuffer)
	done := make(chan struct{})
	unsubscribe := a.Hub.Subscribe(engine.ListenerFunc(func(ev engine.Event) {
		if ev.Type == engine.EventTimerTick {
			select {
			case events <- ev:
			default:
			}
			return
		}
		select {
		case events <- ev:
		case <-done:
		}
	}))
	defer func() {
		unsubscribe()
		close(done)
	}()

	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				if msg := h.translate(a, ev); msg != nil {
					if err := conn.WriteTyped(msg); err != nil {
						wsLog.Debug().Err(err).Msg("Event write failed")
					}
				}
			}
		}
	}()

	h.sendState(conn, a)

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if env.Raw != nil {
				_ = conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.handle(conn, wsLog, a, env)
	}
}

func (h *WSHandler) handle(conn *ws.Conn, wsLog zerolog.Logger, a *service.Attempt, env ws.RequestEnvelope) {
	eng := a.Engine

	switch env.Action {
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	case ws.ActionNext:
		mv, err := eng.Next()
		if err != nil {
			h.writeErr(conn, err)
			return
		}
		if mv.SubmitRequested {
			st := eng.Status()
			_ = conn.WriteTyped(ws.SubmitRequestedResponse{
				Event:      ws.EventSubmitRequested,
				Answered:   st.Answered,
				Unanswered: st.TotalQuestions - st.Answered,
			})
			return
		}
		h.ack(conn, env.Action, mv)

	case ws.ActionPrevious:
		mv, err := eng.Previous()
		if err != nil {
			h.writeErr(conn, err)
			return
		}
		h.ack(conn, env.Action, mv)

	case ws.ActionGoTo:
		var req ws.GoToRequest
		if !h.decode(conn, env, &req) {
			return
		}
		mv, err := eng.GoTo(*req.Index)
		if err != nil {
			h.writeErr(conn, err)
			return
		}
		h.ack(conn, env.Action, mv)

	case ws.ActionSelect:
		var req ws.SelectRequest
		if !h.decode(conn, env, &req) {
			return
		}
		if err := eng.SelectOption(*req.Option); err != nil {
			h.writeErr(conn, err)
			return
		}
		h.ack(conn, env.Action, gin.H{"selected": *req.Option})

	case ws.ActionClear:
		if err := eng.ClearAnswer(); err != nil {
			h.writeErr(conn, err)
			return
		}
		h.ack(conn, env.Action, gin.H{"selected": nil})

	case ws.ActionBookmark:
		marked, err := eng.ToggleBookmark()
		if err != nil {
			h.writeErr(conn, err)
			return
		}
		h.ack(conn, env.Action, gin.H{"bookmarked": marked})

	case ws.ActionSubmit:
		if _, err := eng.Submit(); err != nil {
			h.writeErr(conn, err)
			return
		}
		wsLog.Info().Msg("Candidate submitted")
		h.ack(conn, env.Action, nil)

	case ws.ActionPause:
		if err := eng.Pause(); err != nil {
			h.writeErr(conn, err)
			return
		}
		h.ack(conn, env.Action, nil)

	default:
		wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
	}
}

// sendState pushes the current question, or the result once submitted, so a
// reconnecting client can render without waiting for the next event.
func (h *WSHandler) sendState(conn *ws.Conn, a *service.Attempt) {
	switch a.Engine.Phase() {
	case engine.PhaseInProgress:
		if msg := h.questionMessage(a); msg != nil {
			_ = conn.WriteTyped(msg)
		}
	case engine.PhaseSubmitted:
		if res, ok := a.Engine.Result(); ok {
			_ = conn.WriteTyped(ws.SubmittedResponse{
				Event:        ws.EventSubmitted,
				DisplayScore: scoring.DisplayScore(res),
				Result:       res,
			})
		}
	default:
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventPaused})
	}
}

// translate maps an engine event to its wire message. It returns nil for
// events with nothing to send.
func (h *WSHandler) translate(a *service.Attempt, ev engine.Event) interface{} {
	switch ev.Type {
	case engine.EventQuestionChanged:
		return h.questionMessage(a)
	case engine.EventTimerTick:
		msg := ws.TickResponse{
			Event:       ws.EventTick,
			Kind:        string(ev.Kind),
			RemainingMs: ev.Remaining.Milliseconds(),
			Text:        ev.Display.Text,
			Level:       string(ev.Display.Level),
			Progress:    ev.Display.Progress,
		}
		if ev.Display.Alert != nil {
			ms := ev.Display.Alert.Milliseconds()
			msg.AlertMs = &ms
		}
		return msg
	case engine.EventTimerExpired:
		return ws.ExpiredResponse{Event: ws.EventExpired, Kind: string(ev.Kind)}
	case engine.EventSubmitted:
		if ev.Result == nil {
			return nil
		}
		return ws.SubmittedResponse{
			Event:        ws.EventSubmitted,
			Forced:       ev.Forced,
			DisplayScore: scoring.DisplayScore(*ev.Result),
			Result:       ev.Result,
		}
	case engine.EventPaused:
		return ws.StateResponse{Event: ws.EventPaused}
	case engine.EventReset:
		return ws.StateResponse{Event: ws.EventReset}
	}
	return nil
}

func (h *WSHandler) questionMessage(a *service.Attempt) interface{} {
	q, selected, err := a.Engine.CurrentQuestion()
	if err != nil {
		return nil
	}
	msg := ws.QuestionResponse{
		Event:    ws.EventQuestion,
		Index:    q.Index,
		Total:    a.Engine.QuestionSet().Len(),
		Question: q,
		Selected: selected,
	}
	if grid := a.Engine.ReviewGrid(); q.Index < len(grid) {
		msg.Bookmarked = grid[q.Index].Bookmarked
	}
	return msg
}

func (h *WSHandler) decode(conn *ws.Conn, env ws.RequestEnvelope, dst interface{}) bool {
	if err := json.Unmarshal(env.Raw, dst); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		_ = conn.WriteError(string(response.ErrValidation), validator.First(fields))
		return false
	}
	return true
}

func (h *WSHandler) ack(conn *ws.Conn, action ws.Action, data interface{}) {
	_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventAck, Action: action, Data: data})
}

func (h *WSHandler) writeErr(conn *ws.Conn, err error) {
	_, code := response.FromError(err)
	_ = conn.WriteError(string(code), response.GetMessage(code))
}
