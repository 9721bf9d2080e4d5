package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/armoureye/intake/cmd/api/config"
	"github.com/armoureye/intake/lib/middleware"
	"github.com/armoureye/intake/lib/pipeline"
	"github.com/armoureye/intake/lib/runtime"
)

// ApiService receives presentation-layer intents and forwards them into the
// intake pipeline.
type ApiService struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Runtime  *runtime.Client
}

// New creates a new ApiService
func New(cfg *config.Config, p *pipeline.Pipeline, rc *runtime.Client) *ApiService {
	return &ApiService{
		Config:   cfg,
		Pipeline: p,
		Runtime:  rc,
	}
}

// Router builds the HTTP surface.
func (s *ApiService) Router(log *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otelchi.Middleware("intake-api", otelchi.WithChiRoutes(r)))
	r.Use(middleware.InjectLogger(log))
	r.Use(middleware.AccessLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/api/pipeline", func(r chi.Router) {
		if s.Config.JwtSecret != "" {
			r.Use(middleware.VerifyJWT(s.Config.JwtSecret))
		}

		r.Get("/status", s.Status)
		r.Get("/images", s.ListImages)
		r.Post("/uploads", s.UploadImages)
		r.Post("/pull", s.PullImage)
		r.Post("/run", s.RunImage)
		r.Post("/delete", s.DeleteImage)
		r.Get("/tasks", s.ListTasks)
		r.Get("/tasks/{id}", s.GetTask)
		r.Get("/tasks/{id}/events", s.TaskEvents)
		r.Get("/messages", s.ListMessages)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, runtime.ErrNoToken):
		status = http.StatusUnauthorized
	case errors.Is(err, runtime.ErrInvalidReference):
		status = http.StatusBadRequest
	default:
		var apiErr *runtime.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
