package prepare

import (
	"log/slog"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// insertObserver creates an observer node for d observing v, spliced into
// program order immediately after v. The observer is registered as a module
// attribute and the node calls it; node name and attribute name coincide.
func (p *pass) insertObserver(v *graph.Node, d *quant.Descriptor) (*graph.Node, error) {
	name := p.m.RegisterObserver(d)
	obs, err := p.m.Graph().InsertAfter(v, graph.OpCallModule, name, name, []graph.Arg{graph.NodeArg{Node: v}})
	if err != nil {
		p.m.RemoveObserver(name)
		return nil, err
	}
	slog.Debug("observer inserted",
		"observer", name,
		"observes", v.Name(),
		"dtype", d.DType,
		"dynamic", d.IsDynamic,
		"kind", d.Kind,
	)
	return obs, nil
}

// maybeInsertOutputObserver inserts an observer on n's output when the
// node's annotation places a non-default requirement on it. Returns nil
// when no observer is needed. On insertion the registry gains the node-form
// entry for n, which later consumers piggyback on.
func (p *pass) maybeInsertOutputObserver(n *graph.Node) (*graph.Node, error) {
	ann := n.Annotation()
	if ann == nil || ann.OutputSpec == nil {
		return nil, nil
	}
	d, err := p.descriptorFromSpec(ann.OutputSpec)
	if err != nil {
		return nil, err
	}
	dtype, dyn := quant.DTypeAndDynamic(d)
	if !dyn && dtype.IsDefault() {
		return nil, nil
	}
	if err := p.reg.Bind(NodeKey(n), d); err != nil {
		return nil, err
	}
	return p.insertObserver(n, d)
}

// sameGraphRegion reports whether n's observed inputs live in the same
// traced submodule scope as n itself. Scopes come from the node-scope map
// handed to Prepare; nodes without a recorded scope are treated as local,
// so a missing map never blocks observer sharing.
func (p *pass) sameGraphRegion(n *graph.Node) bool {
	nodeScope := p.scope[n.Name()]
	for _, a := range n.Args() {
		if !sameRegionArg(p, a, nodeScope) {
			return false
		}
	}
	return true
}

func sameRegionArg(p *pass, a graph.Arg, nodeScope string) bool {
	switch v := a.(type) {
	case graph.NodeArg:
		if !p.m.IsObserverNode(v.Node) {
			return true
		}
		inner, err := observedInput(v.Node)
		if err != nil {
			return false
		}
		producerScope := p.scope[inner.Name()]
		return producerScope == "" || producerScope == nodeScope
	case graph.ListArg:
		for _, inner := range v {
			if !sameRegionArg(p, inner, nodeScope) {
				return false
			}
		}
	case graph.TupleArg:
		for _, inner := range v {
			if !sameRegionArg(p, inner, nodeScope) {
				return false
			}
		}
	}
	return true
}

// firstInputObserver returns the first observer node among n's arguments in
// argument order, or nil when no input is observed.
func (p *pass) firstInputObserver(n *graph.Node) *graph.Node {
	for _, a := range n.Args() {
		if obs := firstObserverInArg(p, a); obs != nil {
			return obs
		}
	}
	return nil
}

func firstObserverInArg(p *pass, a graph.Arg) *graph.Node {
	switch v := a.(type) {
	case graph.NodeArg:
		if p.m.IsObserverNode(v.Node) {
			return v.Node
		}
	case graph.ListArg:
		for _, inner := range v {
			if obs := firstObserverInArg(p, inner); obs != nil {
				return obs
			}
		}
	case graph.TupleArg:
		for _, inner := range v {
			if obs := firstObserverInArg(p, inner); obs != nil {
				return obs
			}
		}
	}
	return nil
}

// outputObserver returns the observer consuming n's output, or nil.
func (p *pass) outputObserver(n *graph.Node) *graph.Node {
	for _, u := range n.Users() {
		if p.m.IsObserverNode(u) {
			return u
		}
	}
	return nil
}

// maybeShareInputOutputObserver merges n's output observer with its first
// input observer by re-pointing the output observer's attribute at the
// input's descriptor instance. Returns false when the merge is not
// applicable (no observed input or no output observer), leaving the caller
// to fall back to removal.
func (p *pass) maybeShareInputOutputObserver(n *graph.Node) (bool, error) {
	inObs := p.firstInputObserver(n)
	outObs := p.outputObserver(n)
	if inObs == nil || outObs == nil {
		return false, nil
	}
	shared, ok := p.m.Observer(inObs.Target())
	if !ok {
		return false, nil
	}
	if err := p.m.SetObserver(outObs.Target(), shared); err != nil {
		return false, err
	}
	slog.Debug("observers merged",
		"node", n.Name(),
		"input_observer", inObs.Name(),
		"output_observer", outObs.Name(),
	)
	return true, nil
}

// removeOutputObserver deletes the observer consuming n's output,
// re-pointing its consumers back at n's raw output. Used as the fallback
// when sharing was requested but not structurally possible.
func (p *pass) removeOutputObserver(n *graph.Node) error {
	obs := p.outputObserver(n)
	if obs == nil {
		return nil
	}
	for _, u := range obs.Users() {
		u.ReplaceInputWith(obs, n)
	}
	if err := p.m.Graph().EraseNode(obs); err != nil {
		return err
	}
	p.m.RemoveObserver(obs.Target())
	slog.Debug("output observer removed", "node", n.Name(), "observer", obs.Name())
	return nil
}

// insertObserversBeforeGraphOutput rewrites the graph output node's
// arguments, inserting a boundary observer ahead of every returned value
// whose output requirement is non-default and not yet observed. Internal
// edges are left untouched: the output node has no downstream consumer, so
// only its own argument list changes.
func (p *pass) insertObserversBeforeGraphOutput(out *graph.Node) error {
	newArgs := make([]graph.Arg, len(out.Args()))
	for i, a := range out.Args() {
		rewritten, err := p.rewriteOutputArg(out, a)
		if err != nil {
			return err
		}
		newArgs[i] = rewritten
	}
	out.SetArgs(newArgs)
	return nil
}

func (p *pass) rewriteOutputArg(out *graph.Node, a graph.Arg) (graph.Arg, error) {
	switch v := a.(type) {
	case graph.ListArg:
		rewritten := make(graph.ListArg, len(v))
		for i, inner := range v {
			r, err := p.rewriteOutputArg(out, inner)
			if err != nil {
				return nil, err
			}
			rewritten[i] = r
		}
		return rewritten, nil
	case graph.TupleArg:
		rewritten := make(graph.TupleArg, len(v))
		for i, inner := range v {
			r, err := p.rewriteOutputArg(out, inner)
			if err != nil {
				return nil, err
			}
			rewritten[i] = r
		}
		return rewritten, nil
	case graph.NodeArg:
		in, err := p.resolveInputRequirement(v.Node, out)
		if err != nil {
			return nil, err
		}
		if in.isDefault() {
			return a, nil
		}
		produced, err := p.resolveOutputRequirement(v.Node)
		if err != nil {
			return nil, err
		}
		if in.equals(produced) && p.m.IsObserverNode(v.Node) {
			// The returned value is already observed at the right
			// representation; record the boundary edge and keep it.
			observed, err := observedInput(v.Node)
			if err != nil {
				return nil, err
			}
			shared, ok := p.reg.Lookup(NodeKey(observed))
			if !ok {
				return nil, &InvariantError{
					Code:    ErrCodeUnboundProducer,
					Edge:    EdgeKey(observed, out).String(),
					Message: "cannot refer to a node that has no observer/fake-quantize bound yet",
				}
			}
			if err := p.reg.Bind(EdgeKey(observed, out), shared); err != nil {
				return nil, err
			}
			return a, nil
		}
		if in.desc == nil {
			return nil, &InvariantError{
				Code:    ErrCodeMissingDescriptor,
				Node:    v.Node.Name(),
				Message: "graph output requires observation but resolved no descriptor",
			}
		}
		obs, err := p.insertObserver(v.Node, in.desc)
		if err != nil {
			return nil, err
		}
		if err := p.reg.Bind(EdgeKey(v.Node, out), in.desc); err != nil {
			return nil, err
		}
		return graph.NodeArg{Node: obs}, nil
	default:
		return a, nil
	}
}
