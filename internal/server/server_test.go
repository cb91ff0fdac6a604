package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fenwick-ai/inferno/internal/config"
	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/logger"
	"github.com/fenwick-ai/inferno/theme"
	"log/slog"
)

type fakeManager struct {
	genResp   *domain.InferenceResponse
	genErr    error
	embedResp *domain.InferenceResponse
	embedErr  error
}

func (m *fakeManager) Generate(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	return m.genResp, m.genErr
}

func (m *fakeManager) Stream(ctx context.Context, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (m *fakeManager) Embed(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	return m.embedResp, m.embedErr
}

type fakeWorker struct {
	submitted []*domain.InferenceRequest
	submitErr error
	job       *domain.Job
	snap      domain.Snapshot
	snapErr   error
	cancelErr error
	list      []domain.Snapshot
	listErr   error
}

func (w *fakeWorker) Start(ctx context.Context) error { return nil }
func (w *fakeWorker) Stop(ctx context.Context) error  { return nil }

func (w *fakeWorker) Submit(ctx context.Context, req *domain.InferenceRequest, priority domain.Priority) (*domain.Job, error) {
	w.submitted = append(w.submitted, req)
	if w.submitErr != nil {
		return nil, w.submitErr
	}
	return w.job, nil
}

func (w *fakeWorker) Status(ctx context.Context, jobID string) (domain.Snapshot, error) {
	return w.snap, w.snapErr
}

func (w *fakeWorker) Cancel(ctx context.Context, jobID string) error {
	return w.cancelErr
}

func (w *fakeWorker) List(ctx context.Context, filter domain.JobFilter) ([]domain.Snapshot, error) {
	return w.list, w.listErr
}

type fakeMonitor struct {
	degraded bool
}

func (m *fakeMonitor) Start(ctx context.Context) error                  { return nil }
func (m *fakeMonitor) Stop(ctx context.Context) error                   { return nil }
func (m *fakeMonitor) RegisterEndpoint(endpoint *domain.EngineEndpoint) {}
func (m *fakeMonitor) UnregisterEndpoint(identity domain.EngineIdentity) {}
func (m *fakeMonitor) Degraded() bool { return m.degraded }
func (m *fakeMonitor) Metrics(identity domain.EngineIdentity) (domain.EngineMetricsSnapshot, bool) {
	return domain.EngineMetricsSnapshot{}, false
}

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.Default(), theme.Default())
}

func newTestServer(m *fakeManager, w *fakeWorker, mon *fakeMonitor) *Server {
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, m, w, mon, testLogger())
}

func TestHandleGenerate_HappyPath(t *testing.T) {
	m := &fakeManager{genResp: &domain.InferenceResponse{ModelID: "m", OutputText: "hi"}}
	s := newTestServer(m, &fakeWorker{}, &fakeMonitor{})

	body := strings.NewReader(`{"model_id":"m","prompt":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()

	s.handleGenerate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.InferenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.OutputText != "hi" {
		t.Errorf("expected output 'hi', got %q", resp.OutputText)
	}
}

func TestHandleGenerate_MissingModelID(t *testing.T) {
	s := newTestServer(&fakeManager{}, &fakeWorker{}, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()

	s.handleGenerate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGenerate_AllEnginesUnavailable(t *testing.T) {
	m := &fakeManager{genErr: domain.NewAllEnginesUnavailableError("m", nil, errors.New("boom"))}
	s := newTestServer(m, &fakeWorker{}, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model_id":"m"}`))
	rec := httptest.NewRecorder()

	s.handleGenerate(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandleSubmitJob(t *testing.T) {
	w := &fakeWorker{job: domain.NewJob("job-1", domain.InferenceRequest{ModelID: "m"}, domain.PriorityHigh)}
	s := newTestServer(&fakeManager{}, w, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"model_id":"m","priority":"high"}`))
	rec := httptest.NewRecorder()

	s.handleSubmitJob(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp submitJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.JobID != "job-1" {
		t.Errorf("expected job-1, got %q", resp.JobID)
	}
	if len(w.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(w.submitted))
	}
}

func TestHandleSubmitJob_BadPriority(t *testing.T) {
	s := newTestServer(&fakeManager{}, &fakeWorker{}, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"model_id":"m","priority":"urgent"}`))
	rec := httptest.NewRecorder()

	s.handleSubmitJob(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	w := &fakeWorker{snapErr: domain.NewNotFoundError("job", "missing")}
	s := newTestServer(&fakeManager{}, w, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	s.handleGetJob(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCancelJob(t *testing.T) {
	w := &fakeWorker{}
	s := newTestServer(&fakeManager{}, w, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/jobs/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()

	s.handleCancelJob(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandleListJobs_FiltersByState(t *testing.T) {
	w := &fakeWorker{list: []domain.Snapshot{{JobID: "a", State: domain.JobSucceeded}}}
	s := newTestServer(&fakeManager{}, w, &fakeMonitor{})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs?state=SUCCEEDED", nil)
	rec := httptest.NewRecorder()

	s.handleListJobs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snaps []domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(snaps) != 1 || snaps[0].JobID != "a" {
		t.Errorf("unexpected snapshots: %+v", snaps)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	s := newTestServer(&fakeManager{}, &fakeWorker{}, &fakeMonitor{degraded: true})

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandleHealth_Healthy(t *testing.T) {
	s := newTestServer(&fakeManager{}, &fakeWorker{}, &fakeMonitor{degraded: false})

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
