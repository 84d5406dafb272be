package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/timer"
	"github.com/stemsi/exstem-engine/internal/validator"
)

type app struct {
	router *gin.Engine
	sched  *timer.ManualScheduler
	svc    *service.AttemptService
}

func newApp(t *testing.T) *app {
	t.Helper()
	validator.Setup()

	cfg := &config.Config{
		GinMode:            gin.TestMode,
		AttemptTokenSecret: "router-secret",
		AttemptTokenExpiry: time.Hour,
	}
	log := zerolog.Nop()
	sched := timer.NewManualScheduler(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	sets := repository.NewMemoryQuestionSetRepository()
	store := repository.NewMemorySnapshotStore()
	tokens := service.NewTokenService(cfg, nil)
	svc := service.NewAttemptService(sets, store, tokens, sched, engine.Config{}, log)
	t.Cleanup(svc.Shutdown)

	handlers := &Handlers{
		Attempt:     handler.NewAttemptHandler(svc, nil, log),
		QuestionSet: handler.NewQuestionSetHandler(sets, log),
		WS:          handler.NewWSHandler(svc, log, nil),
		System:      handler.NewSystemHandler(nil, svc, nil, log),
	}
	return &app{router: SetupRouter(tokens, nil, handlers, cfg), sched: sched, svc: svc}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (a *app) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func questionSetBody() map[string]interface{} {
	q := func(id, topic string) map[string]interface{} {
		return map[string]interface{}{
			"id":            id,
			"question":      "Question " + id,
			"options":       []string{"A", "B", "C", "D"},
			"correct_index": 2,
			"topic":         topic,
			"difficulty":    "Medium",
			"solution":      "Because.",
		}
	}
	return map[string]interface{}{
		"title":     "Chemistry mock",
		"questions": []interface{}{q("q1", "Organic"), q("q2", "Organic"), q("q3", "Physical")},
	}
}

type ticket struct {
	AttemptID string        `json:"attempt_id"`
	Token     string        `json:"token"`
	Status    engine.Status `json:"status"`
}

func (a *app) startAttempt(t *testing.T) ticket {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/api/v1/question-sets", "", questionSetBody())
	if code != http.StatusCreated {
		t.Fatalf("create set = %d %+v", code, env.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(env.Data, &created)

	code, env = a.do(t, http.MethodPost, "/api/v1/attempts", "", map[string]interface{}{
		"question_set_id":  created.ID,
		"duration_minutes": 30,
	})
	if code != http.StatusCreated {
		t.Fatalf("start = %d %+v", code, env.Error)
	}
	var tk ticket
	if err := json.Unmarshal(env.Data, &tk); err != nil {
		t.Fatal(err)
	}
	return tk
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	code, _ := a.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK {
		t.Errorf("health = %d", code)
	}
}

func TestQuestionSetValidation(t *testing.T) {
	a := newApp(t)
	body := questionSetBody()
	body["questions"].([]interface{})[0].(map[string]interface{})["correct_index"] = 9

	code, env := a.do(t, http.MethodPost, "/api/v1/question-sets", "", body)
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("create = %d %+v", code, env.Error)
	}

	code, _ = a.do(t, http.MethodPost, "/api/v1/question-sets", "", map[string]interface{}{"title": "empty"})
	if code != http.StatusBadRequest {
		t.Errorf("create without questions = %d", code)
	}
}

func TestQuestionSetHidesAnswers(t *testing.T) {
	a := newApp(t)
	_, env := a.do(t, http.MethodPost, "/api/v1/question-sets", "", questionSetBody())
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(env.Data, &created)

	code, env := a.do(t, http.MethodGet, "/api/v1/question-sets/"+created.ID, "", nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	if s := string(env.Data); strings.Contains(s, "correct_index") || strings.Contains(s, "Because.") {
		t.Errorf("candidate view leaked answers: %s", s)
	}
}

func TestAttemptLifecycleOverREST(t *testing.T) {
	a := newApp(t)
	tk := a.startAttempt(t)
	base := "/api/v1/attempts/" + tk.AttemptID

	if code, _ := a.do(t, http.MethodGet, base, "", nil); code != http.StatusUnauthorized {
		t.Errorf("get without token = %d", code)
	}

	code, env := a.do(t, http.MethodGet, base, tk.Token, nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d %+v", code, env.Error)
	}
	var state struct {
		Status   engine.Status     `json:"status"`
		Grid     []engine.GridCell `json:"grid"`
		Question struct {
			Index int `json:"index"`
		} `json:"question"`
	}
	_ = json.Unmarshal(env.Data, &state)
	if state.Status.Phase != engine.PhaseInProgress || len(state.Grid) != 3 || state.Question.Index != 0 {
		t.Errorf("state = %+v", state)
	}

	code, env = a.do(t, http.MethodGet, base+"/result", tk.Token, nil)
	if code != http.StatusConflict || env.Error.Code != "ATTEMPT_NOT_SUBMITTED" {
		t.Errorf("result before submit = %d %+v", code, env.Error)
	}

	code, _ = a.do(t, http.MethodDelete, base, tk.Token, nil)
	if code != http.StatusOK {
		t.Fatalf("reset = %d", code)
	}
	if code, _ := a.do(t, http.MethodGet, base, tk.Token, nil); code != http.StatusNotFound {
		t.Errorf("get after reset = %d", code)
	}
}

func TestStartValidation(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodPost, "/api/v1/attempts", "", map[string]interface{}{"question_set_id": "x"})
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("start = %d %+v", code, env.Error)
	}

	code, env = a.do(t, http.MethodPost, "/api/v1/attempts", "", map[string]interface{}{
		"question_set_id":  "7b0c2a52-63c5-4d44-8b8e-8d0e3d9d5a11",
		"duration_minutes": 10,
	})
	if code != http.StatusNotFound || env.Error.Code != "QUESTION_SET_NOT_FOUND" {
		t.Errorf("start unknown set = %d %+v", code, env.Error)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 20; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if msg["event"] == want {
			return msg
		}
	}
	t.Fatalf("event %q never arrived", want)
	return nil
}

func TestAttemptStreamOverWebSocket(t *testing.T) {
	a := newApp(t)
	tk := a.startAttempt(t)

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/attempts/" + tk.AttemptID + "/stream?token=" + tk.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	first := readEvent(t, conn, "question")
	if first["index"].(float64) != 0 {
		t.Errorf("initial question = %v", first["index"])
	}

	send := func(v map[string]interface{}) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatal(err)
		}
	}

	send(map[string]interface{}{"action": "select", "option": 2})
	readEvent(t, conn, "ack")

	send(map[string]interface{}{"action": "select", "option": 9})
	if msg := readEvent(t, conn, "error"); msg["code"] != "OUT_OF_RANGE" {
		t.Errorf("bad option error = %v", msg)
	}

	send(map[string]interface{}{"action": "goto", "index": 2})
	if q := readEvent(t, conn, "question"); q["index"].(float64) != 2 {
		t.Errorf("goto question = %v", q["index"])
	}

	send(map[string]interface{}{"action": "next"})
	if msg := readEvent(t, conn, "submit_requested"); msg["answered"].(float64) != 1 {
		t.Errorf("submit_requested = %v", msg)
	}

	send(map[string]interface{}{"action": "ping"})
	readEvent(t, conn, "pong")

	send(map[string]interface{}{"action": "submit"})
	done := readEvent(t, conn, "submitted")
	if done["display_score"] != "1/3" || done["forced"] != false {
		t.Errorf("submitted = %v", done)
	}

	code, env := a.do(t, http.MethodGet, "/api/v1/attempts/"+tk.AttemptID+"/review?status=unanswered", tk.Token, nil)
	if code != http.StatusOK {
		t.Fatalf("review = %d %+v", code, env.Error)
	}
	var rv struct {
		Total   int `json:"total"`
		Options struct {
			Topics []string `json:"topics"`
		} `json:"options"`
	}
	_ = json.Unmarshal(env.Data, &rv)
	if rv.Total != 2 || len(rv.Options.Topics) != 2 {
		t.Errorf("review = %+v", rv)
	}
}
