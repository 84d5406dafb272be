package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/review"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// ResultReader loads results of attempts that are no longer live.
type ResultReader interface {
	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (model.Result, error)
}

// AttemptHandler serves the REST surface of attempts.
type AttemptHandler struct {
	attempts *service.AttemptService
	results  ResultReader
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler. results may be nil.
func NewAttemptHandler(attempts *service.AttemptService, results ResultReader, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		results:  results,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

type attemptStateResponse struct {
	Status   engine.Status               `json:"status"`
	Question *model.QuestionForCandidate `json:"question,omitempty"`
	Selected *int                        `json:"selected"`
	Grid     []engine.GridCell           `json:"grid"`
}

type resultResponse struct {
	Result       model.Result          `json:"result"`
	Tracking     scoring.TrackingStats `json:"tracking"`
	DisplayScore string                `json:"display_score"`
}

type reviewResponse struct {
	Predicate review.Predicate       `json:"predicate"`
	Items     []model.QuestionResult `json:"items"`
	Total     int                    `json:"total"`
	Options   review.Options         `json:"options"`
}

// Start godoc
// POST /api/v1/attempts
// Starts a new attempt and returns its token.
func (h *AttemptHandler) Start(c *gin.Context) {
	var req service.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ticket, err := h.attempts.Start(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, examerr.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrQuestionSetNotFound)
			return
		}
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, ticket)
}

// Resume godoc
// POST /api/v1/attempts/:attempt_id/resume
// Continues a paused attempt, rebuilding it from its snapshot if needed.
func (h *AttemptHandler) Resume(c *gin.Context) {
	id, ok := parseAttemptID(c)
	if !ok {
		return
	}
	ticket, err := h.attempts.Resume(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, ticket)
}

// Get godoc
// GET /api/v1/attempts/:attempt_id
// Returns the live state of an attempt: status, current question and palette.
func (h *AttemptHandler) Get(c *gin.Context) {
	id, ok := parseAttemptID(c)
	if !ok {
		return
	}
	a, err := h.attempts.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := attemptStateResponse{Status: a.Engine.Status(), Grid: a.Engine.ReviewGrid()}
	if resp.Status.Phase == engine.PhaseInProgress {
		if q, selected, err := a.Engine.CurrentQuestion(); err == nil {
			resp.Question = &q
			resp.Selected = selected
		}
	}
	response.Success(c, http.StatusOK, resp)
}

// Result godoc
// GET /api/v1/attempts/:attempt_id/result
func (h *AttemptHandler) Result(c *gin.Context) {
	res, ok := h.result(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, resultResponse{
		Result:       res,
		Tracking:     scoring.Tracking(res),
		DisplayScore: scoring.DisplayScore(res),
	})
}

// Review godoc
// GET /api/v1/attempts/:attempt_id/review?status=&topic=&difficulty=&bookmarked_only=
func (h *AttemptHandler) Review(c *gin.Context) {
	var p review.Predicate
	if fields := validator.BindQuery(c, &p); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	res, ok := h.result(c)
	if !ok {
		return
	}

	view := review.Project(res, p)
	response.Success(c, http.StatusOK, reviewResponse{
		Predicate: view.Predicate,
		Items:     view.Items,
		Total:     view.Len(),
		Options:   review.FilterOptions(res),
	})
}

// Analysis godoc
// GET /api/v1/attempts/:attempt_id/review/analysis
func (h *AttemptHandler) Analysis(c *gin.Context) {
	res, ok := h.result(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, scoring.Analyze(res))
}

// Reset godoc
// DELETE /api/v1/attempts/:attempt_id
// Discards the attempt, its snapshot and its token.
func (h *AttemptHandler) Reset(c *gin.Context) {
	id, ok := parseAttemptID(c)
	if !ok {
		return
	}
	if err := h.attempts.Reset(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt_id": id.String(), "reset": true})
}

// result resolves a graded result from the live engine, falling back to the
// persisted copy. It writes the error response itself.
func (h *AttemptHandler) result(c *gin.Context) (model.Result, bool) {
	id, ok := parseAttemptID(c)
	if !ok {
		return model.Result{}, false
	}

	if a, err := h.attempts.Get(id); err == nil {
		res, done := a.Engine.Result()
		if !done {
			response.Fail(c, http.StatusConflict, response.ErrNotSubmitted)
			return model.Result{}, false
		}
		return res, true
	}

	if h.results == nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return model.Result{}, false
	}
	res, err := h.results.GetByAttempt(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return model.Result{}, false
	}
	return res, true
}

func (h *AttemptHandler) fail(c *gin.Context, err error) {
	status, code := response.FromError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Attempt request failed")
	}
	response.Fail(c, status, code)
}

func parseAttemptID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(middleware.ParamAttemptID))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
