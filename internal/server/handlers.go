package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/finder"
	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/internal/optimizer"
)

type findRequest struct {
	Query   string               `json:"query"`
	Mode    models.Mode          `json:"mode,omitempty"`
	Context *models.QueryContext `json:"context,omitempty"`
}

type batchRequest struct {
	Queries []string             `json:"queries"`
	Mode    models.Mode          `json:"mode,omitempty"`
	Context *models.QueryContext `json:"context,omitempty"`
}

type assessRequest struct {
	Query   string                `json:"query"`
	Type    models.QuestionType   `json:"type,omitempty"`
	Domain  models.BusinessDomain `json:"domain,omitempty"`
	Context *models.QueryContext  `json:"context,omitempty"`
}

type statusResponse struct {
	Finder    finder.Stats    `json:"finder"`
	Optimizer optimizer.Stats `json:"optimizer"`
	Sessions  int             `json:"sessions"`
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("find request", zap.String("query", req.Query), zap.String("mode", string(mode)))
	s.respondJSON(w, http.StatusOK, s.finder.Find(r.Context(), req.Query, mode, req.Context))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("batch request", zap.Int("queries", len(req.Queries)), zap.String("mode", string(mode)))
	res, err := s.finder.BatchFind(r.Context(), req.Queries, mode, req.Context)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("batch failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondJSON(w, http.StatusOK, s.finder.Classify(r.Context(), req.Query, req.Context))
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondJSON(w, http.StatusOK, s.finder.Expand(r.Context(), req.Query, req.Context))
}

// handleAssess classifies and expands the query first when type or domain are omitted.
func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if !s.decode(w, r, &req) {
		return
	}
	qtype := req.Type
	if qtype == "" {
		qtype = s.finder.Classify(r.Context(), req.Query, req.Context).Type
	} else if !qtype.Known() && qtype != models.QuestionUnknown {
		s.respondError(w, http.StatusBadRequest, "unknown question type: "+string(qtype))
		return
	}
	domain := req.Domain
	if domain == "" {
		domain = s.finder.Expand(r.Context(), req.Query, req.Context).PrimaryDomain()
	} else if _, ok := models.ParseDomain(string(domain)); !ok {
		s.respondError(w, http.StatusBadRequest, "unknown domain: "+string(domain))
		return
	}
	s.respondJSON(w, http.StatusOK, s.finder.Assess(r.Context(), req.Query, qtype, domain, req.Context))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	store := s.finder.Sessions()
	if store == nil {
		s.respondError(w, http.StatusNotImplemented, "conversational memory disabled")
		return
	}
	sess, ok := store.Get(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	store := s.finder.Sessions()
	if store == nil {
		s.respondError(w, http.StatusNotImplemented, "conversational memory disabled")
		return
	}
	id := chi.URLParam(r, "id")
	if !store.Delete(id) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Finder:    s.finder.Stats(),
		Optimizer: s.finder.Optimizer().Stats(),
	}
	if store := s.finder.Sessions(); store != nil {
		resp.Sessions = store.Len()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps capacity errors to their HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, finder.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, optimizer.ErrQueueFull), errors.Is(err, optimizer.ErrPoolExhausted):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
