package prepare

import (
	"fmt"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// EdgeOrNode is a registry key: either one specific (producer, consumer)
// use of a value, or a producer node standing for its output as a whole.
// A nil Consumer marks the node form.
type EdgeOrNode struct {
	Producer *graph.Node
	Consumer *graph.Node
}

// NodeKey builds the node-form key for n's output.
func NodeKey(n *graph.Node) EdgeOrNode {
	return EdgeOrNode{Producer: n}
}

// EdgeKey builds the edge-form key for one use of producer by consumer.
func EdgeKey(producer, consumer *graph.Node) EdgeOrNode {
	return EdgeOrNode{Producer: producer, Consumer: consumer}
}

// String renders the key for diagnostics.
func (k EdgeOrNode) String() string {
	if k.Consumer == nil {
		return k.Producer.Name()
	}
	return fmt.Sprintf("%s->%s", k.Producer.Name(), k.Consumer.Name())
}

// Registry maps edges and nodes to the descriptor instance governing them.
//
// The registry grows monotonically during one pass run: binding a key that
// already holds the same descriptor is a no-op, and binding it to a
// different descriptor is an invariant violation. Descriptors are stored by
// reference, never copied; several keys aliasing one *quant.Descriptor is
// how observer sharing is represented.
type Registry struct {
	entries map[EdgeOrNode]*quant.Descriptor
	order   []EdgeOrNode
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[EdgeOrNode]*quant.Descriptor)}
}

// Lookup returns the descriptor bound to key, if any.
func (r *Registry) Lookup(key EdgeOrNode) (*quant.Descriptor, bool) {
	d, ok := r.entries[key]
	return d, ok
}

// Bind records key -> d. Rebinding an existing key to a different
// descriptor instance violates the grow-only invariant and fails.
func (r *Registry) Bind(key EdgeOrNode, d *quant.Descriptor) error {
	if existing, ok := r.entries[key]; ok {
		if existing == d {
			return nil
		}
		return &InvariantError{
			Code:    ErrCodeRegistryConflict,
			Edge:    key.String(),
			Message: "registry key already bound to a different descriptor",
		}
	}
	r.entries[key] = d
	r.order = append(r.order, key)
	return nil
}

// Len returns the number of bound keys.
func (r *Registry) Len() int { return len(r.entries) }

// Entries iterates bound keys in insertion order, which matches traversal
// order by construction.
func (r *Registry) Entries(fn func(key EdgeOrNode, d *quant.Descriptor)) {
	for _, key := range r.order {
		fn(key, r.entries[key])
	}
}
