// Package http exposes the engine over a JSON REST surface plus an SSE
// event feed and a prometheus scrape endpoint.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gantryio/gantry/internal/engine"
	"github.com/gantryio/gantry/internal/notify"
	"github.com/gantryio/gantry/pkg/domain"
)

// Actor identity headers. Authentication is the deployment's concern (a
// fronting proxy); the engine only enforces the role allow-list.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// Server wires the engine into HTTP handlers.
type Server struct {
	engine *engine.Engine
	bus    *notify.Bus
	logger *slog.Logger
}

// NewHandler builds the router. bus may be nil, in which case /events
// returns 503. registry may be nil, in which case /metrics serves the
// default registry.
func NewHandler(eng *engine.Engine, bus *notify.Bus, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	s := &Server{engine: eng, bus: bus, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Get("/events", s.events)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/migrations", s.createMigration)
		r.Post("/migrations/{id}/iterations", s.createIteration)
		r.Post("/iterations/{id}/materialize", s.materialize)

		r.Get("/instances/{id}", s.getInstance)
		r.Get("/instances/{id}/audit", s.auditTrail)
		r.Get("/instances/{id}/eligible", s.eligible)
		r.Post("/instances/{id}/transition", s.transition)
		r.Post("/instances/{id}/overrides", s.override)

		r.Get("/phases/{id}/gate", s.gate)
		r.Get("/steps/{id}/completion", s.completion)
	})

	return r
}

func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   r.Header.Get(HeaderActorID),
		Role: domain.Role(r.Header.Get(HeaderActorRole)),
	}
}

func (s *Server) createMigration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mig, err := s.engine.CreateMigration(r.Context(), body.Name, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, mig)
}

func (s *Server) createIteration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	iter, err := s.engine.CreateIteration(r.Context(), chi.URLParam(r, "id"), body.Name, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, iter)
}

func (s *Server) materialize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlanTemplateID string `json:"plan_template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	result, err := s.engine.Materialize(r.Context(), chi.URLParam(r, "id"), body.PlanTemplateID, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.GetInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) auditTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := s.engine.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trail == nil {
		trail = []*domain.AuditEntry{}
	}
	s.writeJSON(w, http.StatusOK, trail)
}

func (s *Server) eligible(w http.ResponseWriter, r *http.Request) {
	eligible, err := s.engine.IsEligible(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"eligible": eligible})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target   domain.Status     `json:"target"`
		Expected domain.Status     `json:"expected,omitempty"`
		Kind     domain.EntityType `json:"entity_type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	inst, err := s.engine.Transition(r.Context(), engine.TransitionRequest{
		EntityType: body.Kind,
		EntityID:   chi.URLParam(r, "id"),
		Target:     body.Target,
		Expected:   body.Expected,
		Actor:      actorFrom(r),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) override(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	inst, err := s.engine.OverrideField(r.Context(), chi.URLParam(r, "id"), body.Field, body.Value, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) gate(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.EvaluateGate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) completion(w http.ResponseWriter, r *http.Request) {
	progress, err := s.engine.Completion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

// events streams transition events as SSE.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event feed not configured", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.bus.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("failed to marshal event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: transition\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps domain errors onto HTTP status codes. Recoverable
// conflicts are 409 so clients can re-read and retry; rule violations that
// will never succeed as-is are 422.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		conflict    *domain.ConcurrentModificationError
		dependency  *domain.DependencyNotSatisfiedError
		gateFailed  *domain.ControlGateFailedError
		incomplete  *domain.InstructionsIncompleteError
		childrenOpn *domain.ChildrenOpenError
		iterState   *domain.IterationStateError
		invalid     *domain.InvalidTransitionError
		cyclic      *domain.CyclicDependencyError
		tmplMissing *domain.TemplateNotFoundError
	)

	switch {
	case errors.Is(err, domain.ErrInstanceNotFound), errors.As(err, &tmplMissing):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.As(err, &conflict),
		errors.As(err, &dependency),
		errors.As(err, &gateFailed),
		errors.As(err, &incomplete),
		errors.As(err, &childrenOpn),
		errors.As(err, &iterState),
		errors.Is(err, domain.ErrIterationClosed),
		errors.Is(err, domain.ErrTemplateFrozen):
		status = http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &cyclic):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
