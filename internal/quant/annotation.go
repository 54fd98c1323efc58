package quant

// Annotation is the per-node quantization metadata attached by the
// annotator before the observer-insertion pass runs.
//
// InputSpecs is keyed by producer node name as it was at annotation time,
// before any rewriting; the pass looks through inserted observer nodes to
// recover the original producer when resolving an entry.
type Annotation struct {
	// InputSpecs maps a producer node name to the requirement the consuming
	// node places on that input edge.
	InputSpecs map[string]*Spec

	// OutputSpec is the requirement on the node's own output, if any.
	OutputSpec *Spec

	// InputOutputShareObservers requests that the node's output observer be
	// merged with its input observer when both live in the same graph
	// region (e.g. reshape-like ops that must not requantize).
	InputOutputShareObservers bool

	// ReuseInputObsOrFq requests that the output reuse an input's observer
	// verbatim, unconditionally.
	ReuseInputObsOrFq bool
}

// InputSpecFor returns the requirement this node places on the edge from
// the named producer, or nil when the edge carries no requirement.
// Safe on a nil annotation.
func (a *Annotation) InputSpecFor(producer string) *Spec {
	if a == nil || a.InputSpecs == nil {
		return nil
	}
	return a.InputSpecs[producer]
}
