package registry

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/logger"
	"github.com/fenwick-ai/inferno/internal/util/pattern"
)

// MemoryModelRegistry maps model_id to its ModelDescriptor (engine
// preference list and capability set) using the same copy-on-write
// xsync.Map idiom the teacher uses for its endpoint model index: every
// write stores a fresh *domain.ModelDescriptor rather than mutating one
// in place, so a Lookup never observes a half-updated descriptor.
type MemoryModelRegistry struct {
	models *xsync.Map[string, *domain.ModelDescriptor]
	logger *logger.StyledLogger
}

func NewMemoryModelRegistry(log *logger.StyledLogger) *MemoryModelRegistry {
	log.Info("Started in-memory model registry")
	return &MemoryModelRegistry{
		models: xsync.NewMap[string, *domain.ModelDescriptor](),
		logger: log,
	}
}

// Lookup returns the descriptor for modelID. A retired model is reported
// as not found: retirement keeps the entry stored but hides it from both
// Lookup and List. If no exact entry exists, Lookup falls back to a
// glob match against registered model_ids (e.g. a seeded "llama-3-*"
// descriptor answers for "llama-3-8b-instruct"), so operators can alias a
// family of checkpoints to one engine preference without enumerating each.
func (r *MemoryModelRegistry) Lookup(ctx context.Context, modelID string) (*domain.ModelDescriptor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if desc, ok := r.models.Load(modelID); ok {
		if desc.Retired() {
			return nil, domain.NewNotFoundError("model", modelID)
		}
		return desc, nil
	}

	var matched *domain.ModelDescriptor
	r.models.Range(func(pattern_ string, desc *domain.ModelDescriptor) bool {
		if desc.Retired() {
			return true
		}
		if pattern.MatchesGlob(modelID, pattern_) {
			matched = desc
			return false
		}
		return true
	})
	if matched == nil {
		return nil, domain.NewNotFoundError("model", modelID)
	}
	return matched, nil
}

// Register stores desc, replacing any prior descriptor for the same
// model_id. The caller owns desc and must not mutate it afterwards.
func (r *MemoryModelRegistry) Register(ctx context.Context, desc *domain.ModelDescriptor) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if desc == nil || desc.ModelID == "" {
		return domain.NewClientError("model_id", "model_id cannot be empty")
	}

	r.models.Store(desc.ModelID, desc)
	return nil
}

// Retire marks modelID as retired by swapping in a copy with RetiredAt
// set, leaving the stored pointer untouched for any caller still holding
// it from an earlier Lookup.
func (r *MemoryModelRegistry) Retire(ctx context.Context, modelID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	existing, ok := r.models.Load(modelID)
	if !ok {
		return domain.NewNotFoundError("model", modelID)
	}

	now := time.Now()
	retired := *existing
	retired.RetiredAt = &now
	r.models.Store(modelID, &retired)
	return nil
}

// List returns every non-retired descriptor currently registered.
func (r *MemoryModelRegistry) List(ctx context.Context) ([]*domain.ModelDescriptor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := make([]*domain.ModelDescriptor, 0, r.models.Size())
	r.models.Range(func(_ string, desc *domain.ModelDescriptor) bool {
		if !desc.Retired() {
			out = append(out, desc)
		}
		return true
	})
	return out, nil
}
