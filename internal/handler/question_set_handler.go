package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/examerr"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// QuestionSetStore creates and loads question sets.
type QuestionSetStore interface {
	Create(ctx context.Context, qs *model.QuestionSet) error
	GetByID(ctx context.Context, id uuid.UUID) (model.QuestionSet, error)
}

// QuestionRequest is one pre-normalized question of a CreateQuestionSetRequest.
type QuestionRequest struct {
	ID                          string   `json:"id" binding:"required"`
	Text                        string   `json:"question" binding:"required"`
	Type                        string   `json:"type" binding:"omitempty,oneof=MULTIPLE_CHOICE TRUE_FALSE"`
	Options                     []string `json:"options" binding:"required,min=2,dive,required"`
	CorrectIndex                *int     `json:"correct_index" binding:"required,min=0"`
	Points                      float64  `json:"points" binding:"omitempty,gte=0"`
	Topic                       string   `json:"topic"`
	Difficulty                  string   `json:"difficulty"`
	Solution                    string   `json:"solution"`
	PYQYear                     *int     `json:"pyq_year"`
	PerQuestionTimeLimitSeconds *int     `json:"per_question_time_limit_seconds" binding:"omitempty,gt=0"`
}

// CreateQuestionSetRequest is the payload for creating a question set.
type CreateQuestionSetRequest struct {
	Title     string            `json:"title" binding:"required,max=200"`
	Section   string            `json:"section" binding:"max=100"`
	Questions []QuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

type questionSetResponse struct {
	ID        uuid.UUID                    `json:"id"`
	Title     string                       `json:"title"`
	Section   string                       `json:"section,omitempty"`
	Total     int                          `json:"total_questions"`
	Questions []model.QuestionForCandidate `json:"questions"`
}

// QuestionSetHandler serves question set authoring and lookup.
type QuestionSetHandler struct {
	sets QuestionSetStore
	log  zerolog.Logger
}

func NewQuestionSetHandler(sets QuestionSetStore, log zerolog.Logger) *QuestionSetHandler {
	return &QuestionSetHandler{
		sets: sets,
		log:  log.With().Str("component", "question_set_handler").Logger(),
	}
}

// Create godoc
// POST /api/v1/question-sets
func (h *QuestionSetHandler) Create(c *gin.Context) {
	var req CreateQuestionSetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	qs := model.QuestionSet{Title: req.Title, Section: req.Section}
	for i, q := range req.Questions {
		if *q.CorrectIndex >= len(q.Options) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				fmt.Sprintf("questions[%d].correct_index", i): "correct_index must point at one of the options",
			})
			return
		}
		qs.Questions = append(qs.Questions, model.Question{
			ID:                          q.ID,
			Text:                        q.Text,
			Type:                        model.QuestionType(q.Type),
			Options:                     q.Options,
			CorrectIndex:                *q.CorrectIndex,
			Points:                      q.Points,
			Topic:                       q.Topic,
			Difficulty:                  q.Difficulty,
			Solution:                    q.Solution,
			PYQYear:                     q.PYQYear,
			PerQuestionTimeLimitSeconds: q.PerQuestionTimeLimitSeconds,
		})
	}

	if err := h.sets.Create(c.Request.Context(), &qs); err != nil {
		h.log.Error().Err(err).Msg("Create question set failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("question_set_id", qs.ID.String()).Int("questions", qs.Len()).Msg("Question set created")
	response.Success(c, http.StatusCreated, gin.H{"id": qs.ID, "total_questions": qs.Len()})
}

// Get godoc
// GET /api/v1/question-sets/:question_set_id
// Returns the set without answer keys or solutions.
func (h *QuestionSetHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("question_set_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	qs, err := h.sets.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, examerr.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrQuestionSetNotFound)
			return
		}
		response.FailError(c, err)
		return
	}

	resp := questionSetResponse{
		ID:        qs.ID,
		Title:     qs.Title,
		Section:   qs.Section,
		Total:     qs.Len(),
		Questions: make([]model.QuestionForCandidate, 0, qs.Len()),
	}
	for i, q := range qs.Questions {
		resp.Questions = append(resp.Questions, q.ForCandidate(i))
	}
	response.Success(c, http.StatusOK, resp)
}
