package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

type fakeManager struct {
	delay    time.Duration
	failWith error
	resp     *domain.InferenceResponse
}

func (m *fakeManager) Generate(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &domain.InferenceResponse{ModelID: req.ModelID, OutputText: "ok"}, nil
}

func (m *fakeManager) Stream(ctx context.Context, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (m *fakeManager) Embed(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	return m.Generate(ctx, req)
}

func waitForTerminal(t *testing.T, w *Worker, jobID string, timeout time.Duration) domain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, err := w.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if snap.State.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %v", jobID, timeout)
	return domain.Snapshot{}
}

func TestSubmitAndComplete(t *testing.T) {
	w := New(&fakeManager{}, Config{Concurrency: 1}, nil)
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(ctx)

	job, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "m"}, domain.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitForTerminal(t, w, job.JobID, time.Second)
	if snap.State != domain.JobSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", snap.State)
	}
	if snap.Result == nil || snap.Result.OutputText != "ok" {
		t.Errorf("expected result 'ok', got %+v", snap.Result)
	}
}

func TestSubmitFailure(t *testing.T) {
	w := New(&fakeManager{failWith: errors.New("boom")}, Config{Concurrency: 1}, nil)
	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop(ctx)

	job, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "m"}, domain.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitForTerminal(t, w, job.JobID, time.Second)
	if snap.State != domain.JobFailed {
		t.Errorf("expected FAILED, got %s", snap.State)
	}
	if snap.FailReason == "" {
		t.Error("expected a fail reason")
	}
}

func TestPriorityPreemption(t *testing.T) {
	// One worker busy with a slow job; queue several NORMAL jobs, then a
	// HIGH job — the HIGH job must be the next one dequeued.
	m := &fakeManager{delay: 200 * time.Millisecond}
	w := New(m, Config{Concurrency: 1}, nil)
	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop(ctx)

	busy, _ := w.Submit(ctx, &domain.InferenceRequest{ModelID: "busy"}, domain.PriorityNormal)
	time.Sleep(20 * time.Millisecond) // let the worker pick up the busy job

	var normalIDs []string
	for i := 0; i < 3; i++ {
		job, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "normal"}, domain.PriorityNormal)
		if err != nil {
			t.Fatalf("Submit normal failed: %v", err)
		}
		normalIDs = append(normalIDs, job.JobID)
	}

	highJob, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "high"}, domain.PriorityHigh)
	if err != nil {
		t.Fatalf("Submit high failed: %v", err)
	}

	waitForTerminal(t, w, busy.JobID, time.Second)
	highSnap := waitForTerminal(t, w, highJob.JobID, time.Second)
	if highSnap.State != domain.JobSucceeded {
		t.Errorf("expected HIGH job to succeed, got %s", highSnap.State)
	}
	for _, id := range normalIDs {
		snap, err := w.Status(ctx, id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if snap.State == domain.JobSucceeded {
			t.Errorf("NORMAL job %s finished before the HIGH job", id)
		}
	}
}

func TestCancelPendingJob(t *testing.T) {
	m := &fakeManager{delay: 200 * time.Millisecond}
	w := New(m, Config{Concurrency: 1}, nil)
	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop(ctx)

	busy, _ := w.Submit(ctx, &domain.InferenceRequest{ModelID: "busy"}, domain.PriorityNormal)
	time.Sleep(20 * time.Millisecond)

	queued, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "queued"}, domain.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := w.Cancel(ctx, queued.JobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	waitForTerminal(t, w, busy.JobID, time.Second)
	snap := waitForTerminal(t, w, queued.JobID, time.Second)
	if snap.State != domain.JobCancelled {
		t.Errorf("expected CANCELLED, got %s", snap.State)
	}
}

func TestCancelRunningJob(t *testing.T) {
	m := &fakeManager{delay: 500 * time.Millisecond}
	w := New(m, Config{Concurrency: 1}, nil)
	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop(ctx)

	job, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "m"}, domain.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker start dispatching

	if err := w.Cancel(ctx, job.JobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	snap := waitForTerminal(t, w, job.JobID, time.Second)
	if snap.State != domain.JobCancelled {
		t.Errorf("expected CANCELLED, got %s", snap.State)
	}
}

func TestQueueFull(t *testing.T) {
	w := New(&fakeManager{delay: time.Second}, Config{Concurrency: 1, QueueCapacityPerPriority: 1}, nil)
	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop(ctx)

	if _, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "a"}, domain.PriorityNormal); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	if _, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "b"}, domain.PriorityNormal); err != nil {
		t.Fatalf("second submit should fill queue capacity: %v", err)
	}
	_, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "c"}, domain.PriorityNormal)
	var qerr *domain.QueueFullError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QueueFullError, got %v", err)
	}
}

func TestSubscribe_ReceivesLifecycleEvents(t *testing.T) {
	w := New(&fakeManager{}, Config{Concurrency: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop(context.Background())

	events, unsubscribe := w.Subscribe(ctx)
	defer unsubscribe()

	job, err := w.Submit(ctx, &domain.InferenceRequest{ModelID: "m"}, domain.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.After(time.Second)
	sawSucceeded := false
	for !sawSucceeded {
		select {
		case snap := <-events:
			if snap.JobID == job.JobID && snap.State == domain.JobSucceeded {
				sawSucceeded = true
			}
		case <-deadline:
			t.Fatal("did not observe a SUCCEEDED event in time")
		}
	}
}

func TestStatus_NotFound(t *testing.T) {
	w := New(&fakeManager{}, Config{Concurrency: 1}, nil)
	if _, err := w.Status(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown job id")
	}
}

func TestList_FiltersByState(t *testing.T) {
	w := New(&fakeManager{}, Config{Concurrency: 1}, nil)
	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop(ctx)

	job, _ := w.Submit(ctx, &domain.InferenceRequest{ModelID: "m"}, domain.PriorityNormal)
	waitForTerminal(t, w, job.JobID, time.Second)

	succeeded := domain.JobSucceeded
	snaps, err := w.List(ctx, domain.JobFilter{State: &succeeded})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("expected 1 succeeded job, got %d", len(snaps))
	}

	failed := domain.JobFailed
	snaps, err = w.List(ctx, domain.JobFilter{State: &failed})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected 0 failed jobs, got %d", len(snaps))
	}
}
