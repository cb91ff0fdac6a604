package domain

import "time"

// ModelDescriptor is a registry entry: a model_id and the ordered list of
// engines willing to serve it, in the Manager's failover order. The list is
// never mutated in place — the registry swaps the whole descriptor in on
// update, so a reader holding a *ModelDescriptor sees a consistent value.
type ModelDescriptor struct {
	RetiredAt        *time.Time
	ModelID          string
	QuantizationTag  string
	EnginePreference []EngineIdentity
	Capabilities     CapabilitySet
}

// Retired reports whether this descriptor has been soft-deleted. Retired
// descriptors stay in the registry (existing jobs referencing the model
// finish normally) but are excluded from new lookups.
func (m *ModelDescriptor) Retired() bool { return m.RetiredAt != nil }

// Supports reports whether this model declares the given capability.
func (m *ModelDescriptor) Supports(c Capability) bool {
	if m.Capabilities == nil {
		return false
	}
	return m.Capabilities.Has(c)
}
