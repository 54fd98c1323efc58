package prepare

import "github.com/quantfx/quantfx/internal/graph"

// DefaultCustomConfig returns the default (empty) preparation options.
func DefaultCustomConfig() map[string]string {
	return map[string]string{}
}

// SaveState persists pass completion metadata on the module for downstream
// passes: the scope map, the custom config, the QAT flag, and the
// name-driven bookkeeping maps. The annotation-driven pass leaves those
// maps empty; requirements live on edges, not node names.
func SaveState(m *graph.Module, nodeScope map[string]string, customConfig map[string]string, isQAT bool, observedNames map[string]struct{}) {
	if customConfig == nil {
		customConfig = DefaultCustomConfig()
	}
	if observedNames == nil {
		observedNames = map[string]struct{}{}
	}
	m.SetState(&graph.PrepareState{
		NodeQConfig:       map[string]string{},
		NodeScope:         nodeScope,
		CustomConfig:      customConfig,
		IsQAT:             isQAT,
		ObservedNodeNames: observedNames,
	})
}
