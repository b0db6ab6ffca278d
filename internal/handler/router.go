package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/handler/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/handler/story"
	"github.com/zhouzirui/narrative-forge/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/narrative-forge/backend/internal/middleware"
	catalogModel "github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	storyService "github.com/zhouzirui/narrative-forge/backend/internal/service/story"
	"github.com/zhouzirui/narrative-forge/backend/pkg/jsonvalue"
	"github.com/zhouzirui/narrative-forge/backend/pkg/utils"
)

// Options carries the router's optional settings.
type Options struct {
	CORSOrigins []string
	Provider    string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(genres catalogModel.Store, stories *storyService.Service, logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.CORSOrigins))

	catalogHandler := catalog.New(genres)
	storyHandler := story.New(stories, logger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, jsonvalue.Object(
			jsonvalue.Field("message", jsonvalue.String("Narrative Forge story engine")),
			jsonvalue.Field("version", jsonvalue.String("1.0.0")),
			jsonvalue.Field("status", jsonvalue.String("running")),
		))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, jsonvalue.Object(
			jsonvalue.Field("status", jsonvalue.String("healthy")),
			jsonvalue.Field("model_provider", jsonvalue.String(opts.Provider)),
			jsonvalue.Field("active_sessions", jsonvalue.Int(len(stories.List(r.Context())))),
		))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		catalogHandler.RegisterRoutes(api)
		storyHandler.RegisterRoutes(api)
	})

	return r
}
