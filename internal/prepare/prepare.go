package prepare

import (
	"fmt"
	"log/slog"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// pass holds the shared state of one preparation run. Execution is strictly
// sequential: the registry has a single writer at any time and insertion
// order matches traversal order, which is what the piggyback lookups rely on.
type pass struct {
	m     *graph.Module
	reg   *Registry
	scope map[string]string
	isQAT bool
}

// Trace summarizes what one pass run did, for logging and the trace store.
type Trace struct {
	GraphName   string
	IsQAT       bool
	NodesBefore int
	NodesAfter  int
	Observers   []ObserverRecord
	Edges       []EdgeRecord
}

// ObserverRecord describes one observer attribute present after the pass.
type ObserverRecord struct {
	Name      string
	Observes  string
	Kind      quant.ObserverKind
	DType     quant.DType
	IsDynamic bool
}

// EdgeRecord describes one registry binding in insertion order.
type EdgeRecord struct {
	Producer string
	Consumer string // empty for node-form keys
	DType    quant.DType
	Dynamic  bool
}

// Prepare rewrites the module in place, inserting observers at every edge
// whose numeric representation must change, and persists the pass state on
// the module. The node-scope map records which traced submodule each node
// came from and gates input/output observer sharing.
//
// Prepare either returns the fully rewritten module or an error; there is
// no partial-success mode.
func Prepare(m *graph.Module, nodeScope map[string]string, isQAT bool) (*graph.Module, error) {
	m, _, err := PrepareTraced(m, nodeScope, isQAT)
	return m, err
}

// PrepareTraced is Prepare plus a Trace of the run for audit tooling.
func PrepareTraced(m *graph.Module, nodeScope map[string]string, isQAT bool) (*graph.Module, *Trace, error) {
	if nodeScope == nil {
		nodeScope = map[string]string{}
	}
	p := &pass{
		m:     m,
		reg:   NewRegistry(),
		scope: nodeScope,
		isQAT: isQAT,
	}

	// Mutation during iteration over the live node list would skip or
	// duplicate nodes, so traversal order is snapshotted up front.
	nodesBefore := m.Graph().Nodes()

	for _, n := range nodesBefore {
		switch n.Op() {
		case graph.OpPlaceholder, graph.OpCallModule, graph.OpCallMethod, graph.OpCallFunction, graph.OpGetAttr:
			if err := p.insertNodeObservers(n); err != nil {
				return nil, nil, fmt.Errorf("prepare %s: node %s: %w", m.Graph().Name(), n.Name(), err)
			}
		case graph.OpOutput:
			if err := p.insertObserversBeforeGraphOutput(n); err != nil {
				return nil, nil, fmt.Errorf("prepare %s: graph output: %w", m.Graph().Name(), err)
			}
		}
	}

	if err := m.Recompile(); err != nil {
		return nil, nil, fmt.Errorf("prepare %s: recompile: %w", m.Graph().Name(), err)
	}
	SaveState(m, nodeScope, DefaultCustomConfig(), isQAT, map[string]struct{}{})

	trace := p.buildTrace(len(nodesBefore))
	slog.Info("graph prepared",
		"graph", m.Graph().Name(),
		"qat", isQAT,
		"nodes_before", trace.NodesBefore,
		"nodes_after", trace.NodesAfter,
		"observers", len(trace.Observers),
		"registry_entries", len(trace.Edges),
	)
	return m, trace, nil
}

// insertNodeObservers runs the full input-then-output observer insertion
// sequence for a single node.
func (p *pass) insertNodeObservers(n *graph.Node) error {
	ann := n.Annotation()
	if ann == nil {
		// No quantization annotation: the node is left untouched.
		return nil
	}

	// Output is tensor-valued if the tracer recorded a tensor value; with
	// no value info at all, presence of the annotation alone decides.
	outputIsTensor := true
	if val := n.Meta().Val; val != nil {
		outputIsTensor = val.IsTensor()
	}

	if len(n.Kwargs()) != 0 {
		return &InvariantError{
			Code:    ErrCodeKwargsPresent,
			Node:    n.Name(),
			Message: fmt.Sprintf("expected no keyword arguments in normalized graph form, got %d", len(n.Kwargs())),
		}
	}

	// Input phase: rewrite every positional argument, then replace the
	// argument tuple atomically.
	newArgs := make([]graph.Arg, len(n.Args()))
	for i, a := range n.Args() {
		rewritten, err := p.rewriteArg(n, a)
		if err != nil {
			return err
		}
		newArgs[i] = rewritten
	}
	n.SetArgs(newArgs)

	if !outputIsTensor {
		return nil
	}

	obs, err := p.maybeInsertOutputObserver(n)
	if err != nil {
		return err
	}
	if obs == nil {
		return nil
	}

	// Redirect every pre-existing consumer of n to the new observer. The
	// user list changes as uses are updated, so iterate over a snapshot,
	// and skip the observer itself to avoid a self-loop.
	for _, u := range n.Users() {
		if u == obs {
			continue
		}
		u.ReplaceInputWith(n, obs)
	}

	if (ann.InputOutputShareObservers && p.sameGraphRegion(n)) || ann.ReuseInputObsOrFq {
		merged, err := p.maybeShareInputOutputObserver(n)
		if err != nil {
			return err
		}
		if !merged {
			// Sharing was requested but is not structurally possible:
			// leave the raw output unobserved.
			if err := p.removeOutputObserver(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// rewriteArg decides, for one argument of consumer, whether an observer
// must be inserted, an existing one reused, or nothing done.
func (p *pass) rewriteArg(consumer *graph.Node, a graph.Arg) (graph.Arg, error) {
	switch v := a.(type) {
	case graph.ListArg:
		// Ops such as concatenation take a sequence of tensors as one
		// logical argument; recurse and rebuild the same container kind.
		rewritten := make(graph.ListArg, len(v))
		for i, inner := range v {
			r, err := p.rewriteArg(consumer, inner)
			if err != nil {
				return nil, err
			}
			rewritten[i] = r
		}
		return rewritten, nil
	case graph.TupleArg:
		rewritten := make(graph.TupleArg, len(v))
		for i, inner := range v {
			r, err := p.rewriteArg(consumer, inner)
			if err != nil {
				return nil, err
			}
			rewritten[i] = r
		}
		return rewritten, nil
	case graph.NodeArg:
		return p.rewriteNodeArg(consumer, v)
	default:
		// Literal scalars carry no numeric representation requirement.
		return a, nil
	}
}

func (p *pass) rewriteNodeArg(consumer *graph.Node, a graph.NodeArg) (graph.Arg, error) {
	arg := a.Node
	in, err := p.resolveInputRequirement(arg, consumer)
	if err != nil {
		return nil, err
	}
	out, err := p.resolveOutputRequirement(arg)
	if err != nil {
		return nil, err
	}

	if in.isDefault() {
		// Default requirement: the edge needs no observer.
		return a, nil
	}

	if in.equals(out) {
		// The edge piggybacks on the producer's already-applied observer:
		// the producer must itself be an inserted observer, and the node it
		// observes must already be bound, or the pass is running on an
		// inconsistent graph.
		if !p.m.IsObserverNode(arg) {
			return nil, &InvariantError{
				Code:    ErrCodeProducerNotObserved,
				Edge:    fmt.Sprintf("%s->%s", arg.Name(), consumer.Name()),
				Message: "matching input/output requirements but producer is not an inserted observer",
			}
		}
		if in.desc == nil {
			return nil, &InvariantError{
				Code:    ErrCodeMissingDescriptor,
				Edge:    fmt.Sprintf("%s->%s", arg.Name(), consumer.Name()),
				Message: "non-default input requirement resolved without a descriptor",
			}
		}
		observed, err := observedInput(arg)
		if err != nil {
			return nil, err
		}
		shared, ok := p.reg.Lookup(NodeKey(observed))
		if !ok {
			return nil, &InvariantError{
				Code:    ErrCodeUnboundProducer,
				Edge:    fmt.Sprintf("%s->%s", observed.Name(), consumer.Name()),
				Message: "cannot refer to a node that has no observer/fake-quantize bound yet",
			}
		}
		if err := p.reg.Bind(EdgeKey(observed, consumer), shared); err != nil {
			return nil, err
		}
		return a, nil
	}

	// Requirements differ: a new observer goes between producer and
	// consumer, configured per the input-side descriptor.
	if in.desc == nil {
		return nil, &InvariantError{
			Code:    ErrCodeMissingDescriptor,
			Edge:    fmt.Sprintf("%s->%s", arg.Name(), consumer.Name()),
			Message: "non-default input requirement resolved without a descriptor",
		}
	}
	obs, err := p.insertObserver(arg, in.desc)
	if err != nil {
		return nil, err
	}
	if err := p.reg.Bind(EdgeKey(arg, consumer), in.desc); err != nil {
		return nil, err
	}
	return graph.NodeArg{Node: obs}, nil
}

// buildTrace snapshots the run's outcome from the mutated module and the
// registry, in deterministic order.
func (p *pass) buildTrace(nodesBefore int) *Trace {
	t := &Trace{
		GraphName:   p.m.Graph().Name(),
		IsQAT:       p.isQAT,
		NodesBefore: nodesBefore,
		NodesAfter:  p.m.Graph().Len(),
	}
	for _, name := range p.m.ObserverNames() {
		d, ok := p.m.Observer(name)
		if !ok {
			continue
		}
		rec := ObserverRecord{
			Name:      name,
			Kind:      d.Kind,
			DType:     d.DType,
			IsDynamic: d.IsDynamic,
		}
		if n := p.m.Graph().Node(name); n != nil {
			if observed, err := observedInput(n); err == nil {
				rec.Observes = observed.Name()
			}
		}
		t.Observers = append(t.Observers, rec)
	}
	p.reg.Entries(func(key EdgeOrNode, d *quant.Descriptor) {
		rec := EdgeRecord{
			Producer: key.Producer.Name(),
			DType:    d.DType,
			Dynamic:  d.IsDynamic,
		}
		if key.Consumer != nil {
			rec.Consumer = key.Consumer.Name()
		}
		t.Edges = append(t.Edges, rec)
	})
	return t
}
