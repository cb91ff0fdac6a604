package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

// StatusTransitionTracker reduces log noise by only logging health
// transitions, grounded on the teacher's StatusTransitionTracker (keyed by
// endpoint URL there, keyed by EngineIdentity here).
type StatusTransitionTracker struct {
	entries sync.Map // map[domain.EngineIdentity]*statusEntry
}

type statusEntry struct {
	lastHealthy int32
	lastLogTime int64
	errorCount  int64
}

func NewStatusTransitionTracker() *StatusTransitionTracker {
	return &StatusTransitionTracker{}
}

// ShouldLog reports whether this probe result warrants a log line, and the
// current consecutive-error count. Every transition logs; repeated errors
// log every 10th occurrence or every 5 minutes, whichever comes first.
func (st *StatusTransitionTracker) ShouldLog(identity domain.EngineIdentity, healthy bool) (bool, int) {
	value, exists := st.entries.Load(identity)
	if !exists {
		entry := &statusEntry{lastHealthy: boolToInt32(healthy), lastLogTime: time.Now().UnixNano()}
		value, _ = st.entries.LoadOrStore(identity, entry)
	}
	entry := value.(*statusEntry)

	wasHealthy := atomic.LoadInt32(&entry.lastHealthy) == 1
	if wasHealthy != healthy {
		atomic.StoreInt32(&entry.lastHealthy, boolToInt32(healthy))
		atomic.StoreInt64(&entry.errorCount, 0)
		return true, 0
	}

	if !healthy {
		count := atomic.AddInt64(&entry.errorCount, 1)
		lastLog := time.Unix(0, atomic.LoadInt64(&entry.lastLogTime))
		if count%10 == 0 || time.Since(lastLog) > 5*time.Minute {
			atomic.StoreInt64(&entry.lastLogTime, time.Now().UnixNano())
			return true, int(count)
		}
	}

	return false, int(atomic.LoadInt64(&entry.errorCount))
}

func (st *StatusTransitionTracker) TrackedEngines() []domain.EngineIdentity {
	var out []domain.EngineIdentity
	st.entries.Range(func(key, _ interface{}) bool {
		out = append(out, key.(domain.EngineIdentity))
		return true
	})
	return out
}

func (st *StatusTransitionTracker) Forget(identity domain.EngineIdentity) {
	st.entries.Delete(identity)
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
