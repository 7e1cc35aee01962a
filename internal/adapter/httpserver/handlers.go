// Package httpserver contains HTTP handlers and middleware.
//
// It provides the REST API for the application: starting research runs,
// polling job state, and observing per-session progress. The package keeps
// HTTP concerns (decoding, validation, status mapping) apart from the
// business logic living in usecase.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Research    usecase.ResearchService
	Session     usecase.SessionService
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	QdrantCheck func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// acceptsJSON rejects requests that explicitly refuse JSON responses.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotAcceptable)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: apiError{
		Code: "INVALID_ARGUMENT", Message: "not acceptable",
		Details: map[string]any{"accept": a},
	}})
	return false
}

type createResearchRequest struct {
	UserID         string `json:"user_id" validate:"required,max=100"`
	SessionID      string `json:"session_id" validate:"required,max=100"`
	ResearchIdea   string `json:"research_idea" validate:"max=20000"`
	ModelTier      string `json:"model_tier" validate:"omitempty,oneof=mini pro"`
	Breadth        string `json:"breadth" validate:"omitempty,oneof=low medium high"`
	Depth          string `json:"depth" validate:"omitempty,oneof=low medium high"`
	DocumentLength string `json:"document_length" validate:"omitempty,oneof=low medium high"`
}

func levelOrDefault(v string) string {
	if v == "" {
		return domain.LevelMedium
	}
	return v
}

// CreateResearchHandler enqueues a research job and returns its id.
func (s *Server) CreateResearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req createResearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		tier := domain.ModelTier(req.ModelTier)
		if tier == "" {
			tier = domain.TierMini
		}
		research := domain.ResearchRequest{
			ResearchIdea:   SanitizeIdea(req.ResearchIdea),
			ModelTier:      tier,
			Breadth:        domain.Breadth(levelOrDefault(req.Breadth)),
			Depth:          domain.Depth(levelOrDefault(req.Depth)),
			DocumentLength: domain.DocumentLength(levelOrDefault(req.DocumentLength)),
		}
		ctx := r.Context()
		jobID, err := s.Research.Enqueue(ctx, req.UserID, req.SessionID, research, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, fmt.Errorf("enqueue: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID, "status": string(domain.JobQueued)})
	}
}

type researchJobResponse struct {
	JobID           string                 `json:"job_id"`
	UserID          string                 `json:"user_id"`
	SessionID       string                 `json:"session_id"`
	Status          string                 `json:"status"`
	CurrentNode     string                 `json:"current_node"`
	ProgressMessage string                 `json:"progress_message"`
	Attempts        int                    `json:"attempts"`
	Request         domain.ResearchRequest `json:"request"`
	Error           *string                `json:"error,omitempty"`
	ResultText      *string                `json:"result_text,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	FailedAt        *time.Time             `json:"failed_at,omitempty"`
}

// GetResearchHandler returns the full job record, including the result text
// once the run completed.
func (s *Server) GetResearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if vr := ValidateJobID(id); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid job id", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		job, err := s.Research.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, researchJobResponse{
			JobID:           job.ID,
			UserID:          job.UserID,
			SessionID:       job.SessionID,
			Status:          string(job.Status),
			CurrentNode:     string(job.CurrentNode),
			ProgressMessage: job.ProgressMessage,
			Attempts:        job.Attempts,
			Request:         job.Request,
			Error:           job.Error,
			ResultText:      job.ResultText,
			CreatedAt:       job.CreatedAt,
			UpdatedAt:       job.UpdatedAt,
			StartedAt:       job.StartedAt,
			CompletedAt:     job.CompletedAt,
			FailedAt:        job.FailedAt,
		})
	}
}

type activeTaskResponse struct {
	TaskID          string    `json:"task_id"`
	TaskType        string    `json:"task_type"`
	Status          string    `json:"status"`
	CurrentNode     string    `json:"current_node"`
	ProgressMessage string    `json:"progress_message"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ActiveTaskHandler returns the session's in-flight task, or 404 when the
// session has none (including slots pointing at already-terminal jobs).
func (s *Server) ActiveTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		sessionID := chi.URLParam(r, "sessionID")
		if vr := ValidateJobID(sessionID); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid session id", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		task, err := s.Session.ActiveTask(r.Context(), sessionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, activeTaskResponse{
			TaskID:          task.TaskID,
			TaskType:        task.Type,
			Status:          string(task.Status),
			CurrentNode:     string(task.CurrentNode),
			ProgressMessage: task.ProgressMessage,
			UpdatedAt:       task.UpdatedAt,
		})
	}
}

type sessionMessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagesHandler returns the session transcript, oldest first.
func (s *Server) MessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		sessionID := chi.URLParam(r, "sessionID")
		if vr := ValidateJobID(sessionID); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid session id", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 500 {
				writeError(w, r, fmt.Errorf("%w: limit must be between 1 and 500", domain.ErrInvalidArgument), nil)
				return
			}
			limit = n
		}
		msgs, err := s.Session.Messages(r.Context(), sessionID, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]sessionMessageResponse, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, sessionMessageResponse{
				ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": out})
	}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis and Qdrant.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		probe := func(name string, fn func(ctx context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, check{Name: name, OK: true})
		}
		probe("db", s.DBCheck)
		probe("redis", s.RedisCheck)
		probe("qdrant", s.QdrantCheck)
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
