package graph

import (
	"fmt"
	"sort"

	"github.com/quantfx/quantfx/internal/quant"
)

// ObserverPrefix is the attribute name prefix for observers inserted by the
// preparation pass.
const ObserverPrefix = "activation_post_process"

// PrepareState is the pass metadata persisted on a module once observer
// insertion has completed. Downstream passes consult it instead of
// re-deriving the information.
type PrepareState struct {
	// NodeQConfig maps node names to the qconfig that was applied.
	// Empty after the annotation-driven pass: requirements live on edges.
	NodeQConfig map[string]string

	// NodeScope maps node names to the submodule scope they were traced in.
	NodeScope map[string]string

	// CustomConfig carries free-form preparation options.
	CustomConfig map[string]string

	// IsQAT records whether the pass prepared for quantization-aware
	// training (fake-quantize) rather than post-training observation.
	IsQAT bool

	// ObservedNodeNames lists nodes observed by name-driven workflows.
	// Empty after the annotation-driven pass.
	ObservedNodeNames map[string]struct{}
}

// Module bundles a graph with its named attributes: the observer /
// fake-quantize descriptors referenced by call_module nodes, plus the
// persisted pass state.
type Module struct {
	graph         *Graph
	observers     map[string]*quant.Descriptor
	observerOrder []string
	state         *PrepareState
}

// NewModule wraps a graph in an empty module.
func NewModule(g *Graph) *Module {
	return &Module{
		graph:     g,
		observers: make(map[string]*quant.Descriptor),
	}
}

// Graph returns the module's graph.
func (m *Module) Graph() *Graph { return m.graph }

// RegisterObserver binds a descriptor under a fresh attribute name derived
// from ObserverPrefix and returns that name.
func (m *Module) RegisterObserver(d *quant.Descriptor) string {
	name := m.graph.FreshName(ObserverPrefix)
	m.observers[name] = d
	m.observerOrder = append(m.observerOrder, name)
	return name
}

// Observer returns the descriptor bound under name.
func (m *Module) Observer(name string) (*quant.Descriptor, bool) {
	d, ok := m.observers[name]
	return d, ok
}

// SetObserver rebinds an existing attribute name to a different descriptor
// instance. Used when merging input and output observers: the attribute is
// re-pointed at the shared instance.
func (m *Module) SetObserver(name string, d *quant.Descriptor) error {
	if _, ok := m.observers[name]; !ok {
		return fmt.Errorf("module: unknown observer attribute %q", name)
	}
	m.observers[name] = d
	return nil
}

// RemoveObserver deletes the attribute binding for name.
func (m *Module) RemoveObserver(name string) {
	if _, ok := m.observers[name]; !ok {
		return
	}
	delete(m.observers, name)
	for i, existing := range m.observerOrder {
		if existing == name {
			m.observerOrder = append(m.observerOrder[:i], m.observerOrder[i+1:]...)
			break
		}
	}
}

// ObserverNames returns attribute names in registration order.
func (m *Module) ObserverNames() []string {
	out := make([]string, len(m.observerOrder))
	copy(out, m.observerOrder)
	return out
}

// NumObservers returns the number of bound observer attributes.
func (m *Module) NumObservers() int { return len(m.observers) }

// IsObserverNode reports whether n is a call into one of this module's
// observer attributes, i.e. an observer inserted by the pass.
func (m *Module) IsObserverNode(n *Node) bool {
	if n == nil || n.Op() != OpCallModule {
		return false
	}
	_, ok := m.observers[n.Target()]
	return ok
}

// SetState persists pass metadata on the module.
func (m *Module) SetState(s *PrepareState) { m.state = s }

// State returns the persisted pass metadata, or nil before preparation.
func (m *Module) State() *PrepareState { return m.state }

// Recompile re-finalizes the module after graph mutation: it validates
// structural consistency and checks that every call into an observer
// attribute resolves, so newly inserted nodes become first-class members.
func (m *Module) Recompile() error {
	if err := m.graph.Validate(); err != nil {
		return err
	}
	referenced := make(map[string]bool)
	for _, n := range m.graph.Nodes() {
		if n.Op() != OpCallModule {
			continue
		}
		if _, ok := m.observers[n.Target()]; ok {
			referenced[n.Target()] = true
		}
	}
	var dangling []string
	for name := range m.observers {
		if !referenced[name] {
			dangling = append(dangling, name)
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return fmt.Errorf("module %s: observer attribute(s) %v not referenced by any node", m.graph.Name(), dangling)
	}
	return nil
}
