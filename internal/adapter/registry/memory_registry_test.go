package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fenwick-ai/inferno/internal/logger"
	"github.com/fenwick-ai/inferno/theme"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

const (
	DefaultModelName  = "llama4:128x17b"
	DefaultModelNameA = "gemma3:12b"
	DefaultModelNameB = "deepseek-r1:32b"
)

func TestNewMemoryModelRegistry(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	models, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(models) != 0 {
		t.Errorf("expected 0 models, got %d", len(models))
	}
}

func TestRegisterAndLookup(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	desc := testDescriptor(DefaultModelName, domain.EngineOllama)
	if err := registry.Register(ctx, desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := registry.Lookup(ctx, DefaultModelName)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ModelID != DefaultModelName {
		t.Errorf("expected model_id %s, got %s", DefaultModelName, got.ModelID)
	}
}

func TestLookup_NotFound(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	_, err := registry.Lookup(ctx, "nonexistent")
	if err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestRegister_ReplacesExisting(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	if err := registry.Register(ctx, testDescriptor(DefaultModelName, domain.EngineOllama)); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := registry.Register(ctx, testDescriptor(DefaultModelName, domain.EngineVLLM)); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	got, err := registry.Lookup(ctx, DefaultModelName)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.EnginePreference[0] != domain.EngineVLLM {
		t.Errorf("expected replaced preference vllm, got %v", got.EnginePreference[0])
	}
}

func TestRetire(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	desc := testDescriptor(DefaultModelName, domain.EngineOllama)
	if err := registry.Register(ctx, desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := registry.Retire(ctx, DefaultModelName); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	if _, err := registry.Lookup(ctx, DefaultModelName); err == nil {
		t.Error("expected retired model to be unreachable via Lookup")
	}

	if desc.Retired() {
		t.Error("caller's original descriptor must not be mutated by Retire")
	}
}

func TestRetire_NotFound(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	if err := registry.Retire(ctx, "nonexistent"); err == nil {
		t.Error("expected error retiring unknown model")
	}
}

func TestList_ExcludesRetired(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	if err := registry.Register(ctx, testDescriptor(DefaultModelName, domain.EngineOllama)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(ctx, testDescriptor(DefaultModelNameA, domain.EngineOllama)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Retire(ctx, DefaultModelNameA); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	models, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(models) != 1 || models[0].ModelID != DefaultModelName {
		t.Errorf("expected only %s in List, got %v", DefaultModelName, models)
	}
}

func TestContextCancellation(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := registry.Register(ctx, testDescriptor(DefaultModelName, domain.EngineOllama)); err == nil {
		t.Error("expected error due to cancelled context")
	}
	if _, err := registry.Lookup(ctx, DefaultModelName); err == nil {
		t.Error("expected error due to cancelled context")
	}
	if _, err := registry.List(ctx); err == nil {
		t.Error("expected error due to cancelled context")
	}
}

func TestConcurrentAccess(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 200)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			modelID := fmt.Sprintf("model-%d", id)
			for j := 0; j < 10; j++ {
				if err := registry.Register(ctx, testDescriptor(modelID, domain.EngineOllama)); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := registry.List(ctx); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent access error: %v", err)
	}
}

func TestLookup_GlobFallback(t *testing.T) {
	registry := NewMemoryModelRegistry(createTestLogger())
	ctx := context.Background()

	desc := testDescriptor("llama-3-*", domain.EngineVLLM)
	if err := registry.Register(ctx, desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := registry.Lookup(ctx, "llama-3-8b-instruct")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ModelID != "llama-3-*" {
		t.Errorf("expected the glob descriptor, got %+v", got)
	}

	if _, err := registry.Lookup(ctx, "mistral-7b"); err == nil {
		t.Error("expected no match for an unrelated model id")
	}
}

func testDescriptor(modelID string, engine domain.EngineIdentity) *domain.ModelDescriptor {
	return &domain.ModelDescriptor{
		ModelID:          modelID,
		EnginePreference: []domain.EngineIdentity{engine},
		Capabilities:     domain.CapabilitySet{},
	}
}

func createTestLogger() *logger.StyledLogger {
	loggerCfg := &logger.Config{Level: "error", Theme: "default"}
	log, _, _ := logger.New(loggerCfg)
	return logger.NewStyledLogger(log, theme.Default())
}
