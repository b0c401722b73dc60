package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

const maxBodyBytes = 1 << 20

// ErrorRequest records an error occurrence.
type ErrorRequest struct {
	ErrorText string `json:"error_text"`
	Query     string `json:"query,omitempty"`
}

// ResolveRequest links an error to the files that fixed it.
type ResolveRequest struct {
	ErrorText  string   `json:"error_text"`
	FixedFiles []string `json:"fixed_files"`
	Note       string   `json:"note,omitempty"`
}

// EmbeddingRequest attaches a vector to an existing neuron.
type EmbeddingRequest struct {
	Type      store.NeuronType `json:"type"`
	Path      string           `json:"path"`
	Embedding []float64        `json:"embedding"`
	Model     string           `json:"model,omitempty"`
}

// RecallResponse wraps recall results.
type RecallResponse struct {
	Query   string                `json:"query"`
	Count   int                   `json:"count"`
	Results []engine.RecallResult `json:"results"`
}

// NeuronsResponse wraps a neuron listing.
type NeuronsResponse struct {
	Count   int            `json:"count"`
	Neurons []store.Neuron `json:"neurons"`
}

func newSessionID() string { return uuid.NewString() }

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}

// fail maps engine and store errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case engine.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNeuronNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrStoreBusy):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var ev engine.AccessEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	n, err := s.engine(w, r).RecordEvent(r.Context(), ev)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var p engine.RecallParams
	if !decodeBody(w, r, &p) {
		return
	}
	results, err := s.engine(w, r).Recall(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecallResponse{Query: p.Query, Count: len(results), Results: results})
}

func (s *Server) handleRecordError(w http.ResponseWriter, r *http.Request) {
	var req ErrorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.engine(w, r).RecordError(r.Context(), req.ErrorText, req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolveError(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine(w, r).ResolveError(r.Context(), req.ErrorText, req.FixedFiles, req.Note); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleSetEmbedding(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine(w, r).SetEmbedding(r.Context(), req.Type, req.Path, req.Embedding, req.Model); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine(w, r).Decay(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine(w, r).Consolidate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine(w, r).Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine(w, r).TokenReport(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSuperhighways(w http.ResponseWriter, r *http.Request) {
	eng := s.engine(w, r)

	threshold := eng.Params().SuperhighwayThreshold
	if v := r.URL.Query().Get("min"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.fail(w, r, &engine.ValidationError{Op: "superhighways", Field: "min", Value: v, Reason: "not a number"})
			return
		}
		threshold = f
	}
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.fail(w, r, &engine.ValidationError{Op: "superhighways", Field: "limit", Value: v, Reason: "must be a positive integer"})
			return
		}
		limit = n
	}

	neurons, err := eng.TopNeurons(r.Context(), threshold, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NeuronsResponse{Count: len(neurons), Neurons: neurons})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	cov, err := s.engine(w, r).EmbeddingCoverage(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

