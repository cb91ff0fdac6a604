package balancer

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

func TestFailoverOrder_SortsByPriorityDescending(t *testing.T) {
	order := NewFailoverOrder()

	endpoints := []*domain.EngineEndpoint{
		createOrderEndpoint(domain.EngineOllama, 100),
		createOrderEndpoint(domain.EngineVLLM, 300),
		createOrderEndpoint(domain.EngineTGI, 200),
	}

	ordered := order.Order(endpoints)
	if ordered[0].Identity != domain.EngineVLLM {
		t.Errorf("expected vllm first, got %s", ordered[0].Identity)
	}
	if ordered[1].Identity != domain.EngineTGI {
		t.Errorf("expected tgi second, got %s", ordered[1].Identity)
	}
	if ordered[2].Identity != domain.EngineOllama {
		t.Errorf("expected ollama last, got %s", ordered[2].Identity)
	}
}

func TestFailoverOrder_TiesByIdentity(t *testing.T) {
	order := NewFailoverOrder()

	endpoints := []*domain.EngineEndpoint{
		createOrderEndpoint(domain.EngineVLLM, 100),
		createOrderEndpoint(domain.EngineOllama, 100),
	}

	ordered := order.Order(endpoints)
	if ordered[0].Identity != domain.EngineOllama || ordered[1].Identity != domain.EngineVLLM {
		t.Errorf("expected deterministic tie-break by identity, got %s then %s", ordered[0].Identity, ordered[1].Identity)
	}
}

func TestFailoverOrder_DoesNotMutateInput(t *testing.T) {
	order := NewFailoverOrder()

	endpoints := []*domain.EngineEndpoint{
		createOrderEndpoint(domain.EngineOllama, 100),
		createOrderEndpoint(domain.EngineVLLM, 300),
	}
	original := endpoints[0]

	order.Order(endpoints)

	if endpoints[0] != original {
		t.Error("Order must not reorder the caller's slice in place")
	}
}

func TestFilterRoutable(t *testing.T) {
	order := NewFailoverOrder()

	endpoints := []*domain.EngineEndpoint{
		createOrderEndpoint(domain.EngineOllama, 100),
		createOrderEndpoint(domain.EngineVLLM, 300),
		createOrderEndpoint(domain.EngineTGI, 200),
	}

	routable := order.FilterRoutable(endpoints, func(identity domain.EngineIdentity) bool {
		return identity != domain.EngineVLLM
	})

	if len(routable) != 2 {
		t.Fatalf("expected 2 routable endpoints, got %d", len(routable))
	}
	for _, e := range routable {
		if e.Identity == domain.EngineVLLM {
			t.Error("excluded engine leaked into routable list")
		}
	}
}

func createOrderEndpoint(identity domain.EngineIdentity, priority int) *domain.EngineEndpoint {
	testURL, _ := url.Parse(fmt.Sprintf("http://localhost:8000/%s", identity))
	return &domain.EngineEndpoint{
		Identity:  identity,
		Name:      string(identity),
		URL:       testURL,
		URLString: testURL.String(),
		Priority:  priority,
	}
}
