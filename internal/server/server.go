// Package server exposes the HTTP surface: webhook ingress, resolution submission,
// task polling and streaming, and merge conflict review.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/contextx"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

type EventRouter interface {
	Route(ctx context.Context, name string, body []byte) (service.RouteResult, error)
}

type ResolutionService interface {
	Submit(ctx context.Context, sub service.Submission) (entity.Task, error)
}

type TaskService interface {
	Get(ctx context.Context, id string) (service.TaskView, error)
	Stream(ctx context.Context, id string, emit func(entity.Progress) error) error
}

type MergeConflictService interface {
	Details(ctx context.Context, id int64) (entity.MergeConflictDetails, error)
	Decide(ctx context.Context, id int64, decision entity.MergeConflictStatus) (entity.MergeConflict, error)
}

type Server struct {
	router        EventRouter
	resolutions   ResolutionService
	tasks         TaskService
	conflicts     MergeConflictService
	webhookSecret []byte
	validate      *validator.Validate
}

func NewServer(
	router EventRouter,
	resolutions ResolutionService,
	tasks TaskService,
	conflicts MergeConflictService,
	webhookSecret string,
) *Server {
	return &Server{
		router:        router,
		resolutions:   resolutions,
		tasks:         tasks,
		conflicts:     conflicts,
		webhookSecret: []byte(webhookSecret),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", s.PostWebhook)
	r.Post("/resolve_conflicts", s.PostResolveConflicts)
	r.Get("/get-task/{taskId}", s.GetTask)
	r.Get("/tasks/{taskId}/stream", s.GetTaskStream)
	r.Get("/merge-conflicts/{mergeId}", s.GetMergeConflict)
	r.Post("/merge-conflicts/{mergeId}/decision", s.PostMergeConflictDecision)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}
