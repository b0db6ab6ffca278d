package story

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/session"
	storyService "github.com/zhouzirui/narrative-forge/backend/internal/service/story"
	"github.com/zhouzirui/narrative-forge/backend/pkg/jsonvalue"
	"github.com/zhouzirui/narrative-forge/backend/pkg/utils"
)

const (
	defaultGenre      = "fantasy"
	defaultDifficulty = "medium"
	maxBodyBytes      = 1 << 16
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type createStoryRequest struct {
	Genre      string `json:"genre" validate:"omitempty,max=64,printascii"`
	Difficulty string `json:"difficulty" validate:"omitempty,max=64,printascii"`
}

type choiceRequest struct {
	ChoiceIndex *int `json:"choice_index" validate:"required"`
}

// Handler serves story sessions over HTTP.
type Handler struct {
	stories *storyService.Service
	logger  *zap.Logger
}

// New creates the story handler.
func New(stories *storyService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{stories: stories, logger: logger.Named("http.story")}
}

// RegisterRoutes mounts the story routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stories", func(r chi.Router) {
		r.Post("/", h.handleCreateStory)
		r.Get("/", h.handleListStories)
		r.Get("/{sessionID}", h.handleGetStory)
		r.Delete("/{sessionID}", h.handleEndStory)
		r.Post("/{sessionID}/choices", h.handleMakeChoice)
		r.Get("/{sessionID}/history", h.handleHistory)
	})
}

func (h *Handler) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	req, err := bindCreateStory(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Genre == "" {
		req.Genre = defaultGenre
	}
	if req.Difficulty == "" {
		req.Difficulty = defaultDifficulty
	}

	sess, err := h.stories.Create(r.Context(), req.Genre, req.Difficulty)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Story created successfully",
		jsonvalue.Object(jsonvalue.Field("session_id", jsonvalue.String(sess.ID)))))
}

func (h *Handler) handleGetStory(w http.ResponseWriter, r *http.Request) {
	sess, err := h.stories.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Story state retrieved successfully", sessionValue(sess)))
}

func (h *Handler) handleMakeChoice(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	req, err := bindChoice(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	seg, err := h.stories.Resolve(r.Context(), sessionID, *req.ChoiceIndex)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, jsonvalue.Object(
		jsonvalue.Field("segment", segmentValue(seg)),
		jsonvalue.Field("session_id", jsonvalue.String(sessionID)),
	))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.stories.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Story history retrieved successfully", jsonvalue.Object(
		jsonvalue.Field("history", segmentsValue(history)),
		jsonvalue.Field("total_segments", jsonvalue.Int(len(history))),
	)))
}

func (h *Handler) handleEndStory(w http.ResponseWriter, r *http.Request) {
	if err := h.stories.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Story session ended successfully", jsonvalue.Null()))
}

func (h *Handler) handleListStories(w http.ResponseWriter, r *http.Request) {
	ids := h.stories.List(r.Context())
	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Active sessions retrieved successfully", jsonvalue.Object(
		jsonvalue.Field("active_sessions", jsonvalue.Strings(ids)),
		jsonvalue.Field("count", jsonvalue.Int(len(ids))),
	)))
}

var errInvalidBody = errors.New("invalid request body")

// readBody parses the request body as a JSON object. An empty body reads as
// an empty object when allowEmpty is set.
func readBody(r *http.Request, allowEmpty bool) (jsonvalue.Value, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(data) > maxBodyBytes {
		return jsonvalue.Value{}, errInvalidBody
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if allowEmpty {
			return jsonvalue.Object(), nil
		}
		return jsonvalue.Value{}, errInvalidBody
	}
	body, err := jsonvalue.Parse(data)
	if err != nil || body.Kind() != jsonvalue.KindObject {
		return jsonvalue.Value{}, errInvalidBody
	}
	return body, nil
}

func bindCreateStory(r *http.Request) (createStoryRequest, error) {
	var req createStoryRequest
	body, err := readBody(r, true)
	if err != nil {
		return req, err
	}
	for _, m := range body.Members() {
		var dst *string
		switch m.Key {
		case "genre":
			dst = &req.Genre
		case "difficulty":
			dst = &req.Difficulty
		default:
			return req, fmt.Errorf("unknown field %q", m.Key)
		}
		if *dst, err = optionalString(m); err != nil {
			return req, err
		}
	}
	return req, validateRequest(&req)
}

func bindChoice(r *http.Request) (choiceRequest, error) {
	var req choiceRequest
	body, err := readBody(r, false)
	if err != nil {
		return req, err
	}
	for _, m := range body.Members() {
		if m.Key != "choice_index" {
			return req, fmt.Errorf("unknown field %q", m.Key)
		}
		if req.ChoiceIndex, err = optionalInt(m); err != nil {
			return req, err
		}
	}
	return req, validateRequest(&req)
}

func optionalString(m jsonvalue.Member) (string, error) {
	switch m.Value.Kind() {
	case jsonvalue.KindNull:
		return "", nil
	case jsonvalue.KindString:
		s, _ := m.Value.AsString()
		return s, nil
	case jsonvalue.KindBool, jsonvalue.KindNumber, jsonvalue.KindArray, jsonvalue.KindObject:
		return "", fmt.Errorf("invalid field %s: expected string, got %s", m.Key, m.Value.Kind())
	default:
		return "", fmt.Errorf("invalid field %s: unknown kind %s", m.Key, m.Value.Kind())
	}
}

func optionalInt(m jsonvalue.Member) (*int, error) {
	switch m.Value.Kind() {
	case jsonvalue.KindNull:
		return nil, nil
	case jsonvalue.KindNumber:
		n, _ := m.Value.AsNumber()
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return nil, fmt.Errorf("invalid field %s: expected integer", m.Key)
		}
		i := int(n)
		return &i, nil
	case jsonvalue.KindBool, jsonvalue.KindString, jsonvalue.KindArray, jsonvalue.KindObject:
		return nil, fmt.Errorf("invalid field %s: expected integer, got %s", m.Key, m.Value.Kind())
	default:
		return nil, fmt.Errorf("invalid field %s: unknown kind %s", m.Key, m.Value.Kind())
	}
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("invalid field " + verrs[0].Field() + ": failed " + verrs[0].Tag())
		}
		return errInvalidBody
	}
	return nil
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Story session not found")
	case errors.Is(err, storyService.ErrInvalidChoice):
		utils.RespondError(w, http.StatusBadRequest, "Invalid choice index")
	case errors.Is(err, storyService.ErrValidation):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ai.ErrModelUnavailable), r.Context().Err() != nil:
		h.logger.Warn("story model unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		utils.RespondError(w, http.StatusServiceUnavailable, "Story model is unavailable, please retry")
	default:
		h.logger.Error("story request failed", zap.String("path", r.URL.Path), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
