package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fenwick-ai/inferno/internal/core/constants"
	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/pkg/pool"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// responseBuffers reuses *bytes.Buffer across requests so marshalling a
// response body doesn't allocate a fresh buffer on every call; bytes.Buffer
// already satisfies pool.Resettable via its own Reset method.
var responseBuffers = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

func writeJSON(w http.ResponseWriter, status int, body any) {
	buf := responseBuffers.Get()
	defer responseBuffers.Put(buf)

	if err := jsonAPI.NewEncoder(buf).Encode(body); err != nil {
		w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps a domain error to its HTTP status the way the spec
// expects a gateway client to distinguish "your request was bad" from
// "every engine was unavailable" from "something broke on our side".
func writeError(w http.ResponseWriter, err error) {
	var clientErr *domain.ClientError
	var notFound *domain.NotFoundError
	var queueFull *domain.QueueFullError
	var saturated *domain.SaturatedError
	var unavailable *domain.AllEnginesUnavailableError
	var timeout *domain.TimeoutError

	switch {
	case errors.As(err, &clientErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &queueFull):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error()})
	case errors.As(err, &saturated):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error()})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.As(err, &timeout):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func decodeRequest(r *http.Request) (*domain.InferenceRequest, error) {
	var req domain.InferenceRequest
	if err := jsonAPI.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, domain.NewClientError("body", "malformed JSON: "+err.Error())
	}
	if req.ModelID == "" {
		return nil, domain.NewClientError("model_id", "required")
	}
	return &req, nil
}

// handleGenerate runs a synchronous chat completion against the Engine
// Manager.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	resp, err := s.manager.Generate(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEmbed runs a synchronous embedding against the Engine Manager.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.EmbeddingInput) == 0 {
		writeError(w, domain.NewClientError("embedding_input", "required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	resp, err := s.manager.Embed(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitJobRequest struct {
	domain.InferenceRequest
	Priority string `json:"priority"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

func parsePriority(s string) (domain.Priority, error) {
	switch s {
	case "", "normal":
		return domain.PriorityNormal, nil
	case "high":
		return domain.PriorityHigh, nil
	case "low":
		return domain.PriorityLow, nil
	default:
		return domain.PriorityNormal, domain.NewClientError("priority", "must be one of high, normal, low")
	}
}

// handleSubmitJob enqueues an async inference job on the Inference Worker.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var body submitJobRequest
	if err := jsonAPI.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.NewClientError("body", "malformed JSON: "+err.Error()))
		return
	}
	if body.ModelID == "" {
		writeError(w, domain.NewClientError("model_id", "required"))
		return
	}

	priority, err := parsePriority(body.Priority)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := s.worker.Submit(r.Context(), &body.InferenceRequest, priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitJobResponse{JobID: job.JobID})
}

// handleGetJob reports a job's current Snapshot.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	snap, err := s.worker.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleCancelJob requests cancellation of a pending or running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := s.worker.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListJobs lists known jobs, optionally filtered by state, priority
// and submission time.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.JobFilter{}

	if v := q.Get("state"); v != "" {
		state := domain.JobState(v)
		filter.State = &state
	}
	if v := q.Get("priority"); v != "" {
		priority, err := parsePriority(v)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Priority = &priority
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, domain.NewClientError("offset", "must be an integer"))
			return
		}
		filter.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, domain.NewClientError("limit", "must be an integer"))
			return
		}
		filter.Limit = n
	}

	snaps, err := s.worker.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

type healthResponse struct {
	Degraded bool      `json:"degraded"`
	Time     time.Time `json:"time"`
}

// handleHealth reports whether the gateway is in degraded mode (spec
// section 4.5): true when every registered engine's breaker is currently
// OPEN.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := s.monitor.Degraded()
	status := http.StatusOK
	if degraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Degraded: degraded, Time: time.Now()})
}
