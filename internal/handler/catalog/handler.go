package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/pkg/jsonvalue"
	"github.com/zhouzirui/narrative-forge/backend/pkg/utils"
)

// Handler serves the genre and difficulty catalog.
type Handler struct {
	catalog catalog.Store
}

// New creates the catalog handler.
func New(store catalog.Store) *Handler {
	return &Handler{catalog: store}
}

// RegisterRoutes mounts the catalog routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/genres", h.handleListGenres)
	r.Get("/difficulties", h.handleListDifficulties)
}

func (h *Handler) handleListGenres(w http.ResponseWriter, r *http.Request) {
	genres := h.catalog.Genres()
	items := make([]jsonvalue.Value, len(genres))
	for i, g := range genres {
		items[i] = entry(g.ID, g.Name, g.Description)
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Genres retrieved successfully",
		jsonvalue.Object(jsonvalue.Field("genres", jsonvalue.Array(items...)))))
}

func (h *Handler) handleListDifficulties(w http.ResponseWriter, r *http.Request) {
	levels := h.catalog.Difficulties()
	items := make([]jsonvalue.Value, len(levels))
	for i, d := range levels {
		items[i] = entry(d.ID, d.Name, d.Description)
	}
	utils.RespondJSON(w, http.StatusOK, utils.Envelope("Difficulties retrieved successfully",
		jsonvalue.Object(jsonvalue.Field("difficulties", jsonvalue.Array(items...)))))
}

func entry(id, name, description string) jsonvalue.Value {
	return jsonvalue.Object(
		jsonvalue.Field("id", jsonvalue.String(id)),
		jsonvalue.Field("name", jsonvalue.String(name)),
		jsonvalue.Field("description", jsonvalue.String(description)),
	)
}
