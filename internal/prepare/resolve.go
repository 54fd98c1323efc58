package prepare

import (
	"fmt"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// requirement is the resolved target representation for one side of an edge.
type requirement struct {
	desc      *quant.Descriptor
	dtype     quant.DType
	isDynamic bool
}

// isDefault reports whether the requirement imposes no conversion: static
// and float32-or-unset dtype.
func (r requirement) isDefault() bool {
	return !r.isDynamic && r.dtype.IsDefault()
}

// equals reports whether two requirements name the same target
// representation (same dtype, same dynamic-ness).
func (r requirement) equals(other requirement) bool {
	return r.dtype == other.dtype && r.isDynamic == other.isDynamic
}

// resolveInputRequirement determines the representation the input side of
// the (arg, consumer) edge must satisfy, from the consumer's annotation.
//
// When arg has already been rewritten to an inserted observer node, the
// annotation was written against the original producer, so resolution looks
// through the observer one hop to recover the annotation key.
func (p *pass) resolveInputRequirement(arg, consumer *graph.Node) (requirement, error) {
	lookup := arg
	if p.m.IsObserverNode(arg) {
		inner, err := observedInput(arg)
		if err != nil {
			return requirement{}, err
		}
		lookup = inner
	}
	spec := consumer.Annotation().InputSpecFor(lookup.Name())
	if spec == nil {
		return requirement{}, nil
	}
	d, err := p.descriptorFromSpec(spec)
	if err != nil {
		return requirement{}, fmt.Errorf("input requirement for %s->%s: %w", arg.Name(), consumer.Name(), err)
	}
	dtype, dyn := quant.DTypeAndDynamic(d)
	return requirement{desc: d, dtype: dtype, isDynamic: dyn}, nil
}

// resolveOutputRequirement determines the representation arg satisfies as
// produced: the descriptor of the observer it already is, or the one its
// producer's annotation promises for the output, or nothing.
func (p *pass) resolveOutputRequirement(arg *graph.Node) (requirement, error) {
	if p.m.IsObserverNode(arg) {
		d, _ := p.m.Observer(arg.Target())
		dtype, dyn := quant.DTypeAndDynamic(d)
		return requirement{desc: d, dtype: dtype, isDynamic: dyn}, nil
	}
	ann := arg.Annotation()
	if ann == nil || ann.OutputSpec == nil {
		return requirement{}, nil
	}
	d, err := p.descriptorFromSpec(ann.OutputSpec)
	if err != nil {
		return requirement{}, fmt.Errorf("output requirement for %s: %w", arg.Name(), err)
	}
	dtype, dyn := quant.DTypeAndDynamic(d)
	return requirement{desc: d, dtype: dtype, isDynamic: dyn}, nil
}

// descriptorFromSpec materializes the descriptor a spec calls for. A shared
// spec resolves to the instance already bound to the referenced edge or
// node; anything else creates a fresh instance (promoted to fake-quantize
// under QAT).
func (p *pass) descriptorFromSpec(s *quant.Spec) (*quant.Descriptor, error) {
	if s.SharedWith == nil {
		return quant.NewDescriptor(s, p.isQAT), nil
	}
	producer := p.m.Graph().Node(s.SharedWith.Producer)
	if producer == nil {
		return nil, &InvariantError{
			Code:    ErrCodeUnboundProducer,
			Node:    s.SharedWith.Producer,
			Message: "shared spec references a node that is not in the graph",
		}
	}
	key := NodeKey(producer)
	if s.SharedWith.Consumer != "" {
		consumer := p.m.Graph().Node(s.SharedWith.Consumer)
		if consumer == nil {
			return nil, &InvariantError{
				Code:    ErrCodeUnboundProducer,
				Node:    s.SharedWith.Consumer,
				Message: "shared spec references a node that is not in the graph",
			}
		}
		key = EdgeKey(producer, consumer)
	}
	d, ok := p.reg.Lookup(key)
	if !ok {
		return nil, &InvariantError{
			Code:    ErrCodeUnboundProducer,
			Edge:    key.String(),
			Message: "shared spec references an edge that has no descriptor yet",
		}
	}
	return d, nil
}

// observedInput returns the node an observer node observes: its sole
// positional argument, which must be a plain node reference.
func observedInput(obs *graph.Node) (*graph.Node, error) {
	args := obs.Args()
	if len(args) != 1 {
		return nil, &InvariantError{
			Code:    ErrCodeMalformedObserver,
			Node:    obs.Name(),
			Message: fmt.Sprintf("observer node has %d argument(s), want exactly 1", len(args)),
		}
	}
	ref, ok := args[0].(graph.NodeArg)
	if !ok || ref.Node == nil {
		return nil, &InvariantError{
			Code:    ErrCodeMalformedObserver,
			Node:    obs.Name(),
			Message: fmt.Sprintf("observer argument is %T, want a node reference", args[0]),
		}
	}
	return ref.Node, nil
}
