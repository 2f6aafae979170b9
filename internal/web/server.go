package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kernelboard/internal/apperr"
	"kernelboard/internal/cache"
	"kernelboard/internal/db"
	"kernelboard/internal/db/repository"
	"kernelboard/internal/gate"
	"kernelboard/internal/logger"
	"kernelboard/internal/queue"
	"kernelboard/internal/runner"
	"kernelboard/internal/service"
	"kernelboard/internal/storage"
	"kernelboard/internal/web/middleware"
	"kernelboard/model"
)

type Server struct {
	router       chi.Router
	leaderboards *service.LeaderboardService
	submissions  *service.SubmitService
	gates        *gate.Registry
}

func NewServer(dbClient *db.DB, runners *runner.Registry, gates *gate.Registry, storageClient storage.Storage, qClient queue.Queue, cacheClient cache.Cache) *Server {
	repo := repository.NewLeaderboardRepository(dbClient)
	s := &Server{
		router:       chi.NewRouter(),
		leaderboards: service.NewLeaderboardService(repo, cacheClient, storageClient, qClient),
		submissions:  service.NewSubmitService(repo, runners, gates, cacheClient, storageClient, qClient),
		gates:        gates,
	}

	s.routes()
	return s
}

// Expose the router for main.go
func (s *Server) Router() http.Handler {
	return otelhttp.NewHandler(s.router, "kernelboard")
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.NewLimiter(256, 64).Limit)

	r.Post("/leaderboard", s.handleCreateLeaderboard)
	r.Get("/leaderboard", s.handleListLeaderboards)
	r.Get("/leaderboard/{name}", s.handleGetLeaderboard)
	r.Delete("/leaderboard/{name}", s.handleDeleteLeaderboard)
	r.Get("/leaderboard/{name}/submissions", s.handleGetSubmissions)
	r.Get("/leaderboard/{name}/reference", s.handleGetReference)

	r.Post("/submission", s.handleCreateSubmission)
	r.Post("/submission/serverless", s.handleServerlessSubmission)
	r.Post("/selection/{id}", s.handleResolveSelection)
	r.Get("/submission/{id}/reports", s.handleGetReports)
}

// statusFor maps classified errors onto HTTP statuses; the body always
// carries the user-facing message.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrDuplicateName), errors.Is(err, apperr.ErrGateResolved):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotSessionOwner):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrGateExpired):
		return http.StatusGone
	case errors.Is(err, apperr.ErrInvalidEncoding),
		errors.Is(err, apperr.ErrBadDeadline),
		errors.Is(err, apperr.ErrEmptySelection),
		errors.Is(err, apperr.ErrUnknownTarget),
		errors.Is(err, apperr.ErrLeaderboardMissing),
		errors.Is(err, apperr.ErrDeleteNotConfirmed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type createLeaderboardRequest struct {
	Name          string         `json:"name"`
	Deadline      string         `json:"deadline"`
	ReferenceCode string         `json:"referenceCode"`
	Targets       []model.Target `json:"targets"`
}

func (s *Server) handleCreateLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req createLeaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	lb, err := s.leaderboards.Create(r.Context(), req.Name, req.Deadline, []byte(req.ReferenceCode), req.Targets)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, lb)
}

func (s *Server) handleListLeaderboards(w http.ResponseWriter, r *http.Request) {
	out, err := s.leaderboards.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := s.leaderboards.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lb)
}

type deleteLeaderboardRequest struct {
	Confirmation string `json:"confirmation"`
}

func (s *Server) handleDeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req deleteLeaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := s.leaderboards.Delete(r.Context(), chi.URLParam(r, "name"), req.Confirmation)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"submissionsDeleted": deleted})
}

func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request) {
	data, err := s.leaderboards.ReferenceCode(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleGetSubmissions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	target := model.Target(r.URL.Query().Get("target"))

	subs, err := s.leaderboards.Submissions(r.Context(), name, target)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

// handleCreateSubmission starts the orchestrated flow. With explicit targets
// the run completes within the request and the reports come back directly.
// Without them a selection session opens: the response carries its id and the
// offered targets, the flow finishes in the background, and the reports are
// fetched later by session id.
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.submissions.Begin(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if p.Session() == nil {
		reports, err := p.Await(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
		return
	}

	session := p.Session()
	go func() {
		ctx := logger.WithContext(context.Background(), logger.Log)
		reports, err := p.Await(ctx)
		if err != nil {
			logger.Log.Err(err).Str("session_id", session.ID().String()).Msg("submission flow ended without a run")
			return
		}
		s.submissions.StoreReports(ctx, session.ID(), reports)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"sessionId": session.ID(),
		"targets":   session.Offered(),
	})
}

// handleServerlessSubmission is the no-picker path: targets must come with the
// request and the whole run answers synchronously.
func (s *Server) handleServerlessSubmission(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Backend = model.BackendServerless
	if len(req.Targets) == 0 {
		writeError(w, apperr.ErrEmptySelection)
		return
	}

	p, err := s.submissions.Begin(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	reports, err := p.Await(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

type resolveSelectionRequest struct {
	UserID  string         `json:"userId"`
	Targets []model.Target `json:"targets"`
}

func (s *Server) handleResolveSelection(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req resolveSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.gates.Resolve(id, req.UserID, req.Targets); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "selected"})
}

func (s *Server) handleGetReports(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	reports, ok := s.submissions.Reports(r.Context(), id)
	if !ok {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
