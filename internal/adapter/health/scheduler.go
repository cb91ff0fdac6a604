package health

import (
	"container/heap"
	"sync"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

// scheduledProbe is one entry in the due-time heap.
type scheduledProbe struct {
	endpoint *domain.EngineEndpoint
	dueTime  time.Time
}

type probeHeap []*scheduledProbe

func (h probeHeap) Len() int            { return len(h) }
func (h probeHeap) Less(i, j int) bool  { return h[i].dueTime.Before(h[j].dueTime) }
func (h probeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *probeHeap) Push(x interface{}) { *h = append(*h, x.(*scheduledProbe)) }
func (h *probeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Scheduler is a heap-based due-time queue for engine probes, grounded on
// the teacher's HealthScheduler (container/heap over scheduledCheck).
type Scheduler struct {
	heap   *probeHeap
	heapMu sync.Mutex
	stopCh chan struct{}
	jobCh  chan<- probeJob
}

type probeJob struct {
	endpoint *domain.EngineEndpoint
}

func NewScheduler(jobCh chan<- probeJob) *Scheduler {
	h := &probeHeap{}
	heap.Init(h)
	return &Scheduler{heap: h, jobCh: jobCh, stopCh: make(chan struct{})}
}

func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) ScheduleProbe(endpoint *domain.EngineEndpoint, dueTime time.Time) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	heap.Push(s.heap, &scheduledProbe{endpoint: endpoint, dueTime: dueTime})
}

func (s *Scheduler) ScheduledCount() int {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	return s.heap.Len()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.processDue(now)
		}
	}
}

func (s *Scheduler) processDue(now time.Time) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()

	for s.heap.Len() > 0 {
		next := (*s.heap)[0]
		if now.Before(next.dueTime) {
			return
		}
		due := heap.Pop(s.heap).(*scheduledProbe)

		select {
		case s.jobCh <- probeJob{endpoint: due.endpoint}:
		default:
			due.dueTime = now.Add(time.Second)
			heap.Push(s.heap, due)
		}
	}
}
