package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg is a sealed interface over the kinds of positional argument a node
// can carry. Only IntArg, FloatArg, StringArg, BoolArg, NoneArg, NodeArg,
// ListArg, and TupleArg implement it.
//
// ListArg and TupleArg are distinct types on purpose: rewriting an argument
// must reconstruct a sequence of the same concrete kind, so variadic ops
// keep their original container contract.
type Arg interface {
	arg() // sealed
}

// IntArg is an integer literal argument.
type IntArg int64

func (IntArg) arg() {}

// FloatArg is a floating-point literal argument.
type FloatArg float64

func (FloatArg) arg() {}

// StringArg is a string literal argument.
type StringArg string

func (StringArg) arg() {}

// BoolArg is a boolean literal argument.
type BoolArg bool

func (BoolArg) arg() {}

// NoneArg is an explicit "no value" argument.
type NoneArg struct{}

func (NoneArg) arg() {}

// NodeArg references the value produced by another node.
type NodeArg struct {
	Node *Node
}

func (NodeArg) arg() {}

// ListArg is a resizable ordered sequence of arguments.
type ListArg []Arg

func (ListArg) arg() {}

// TupleArg is a fixed-arity ordered sequence of arguments.
type TupleArg []Arg

func (TupleArg) arg() {}

// FormatArg renders an argument for dumps and diagnostics.
// Node references render as %name, lists as [..], tuples as (..).
func FormatArg(a Arg) string {
	switch v := a.(type) {
	case IntArg:
		return strconv.FormatInt(int64(v), 10)
	case FloatArg:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case StringArg:
		return strconv.Quote(string(v))
	case BoolArg:
		return strconv.FormatBool(bool(v))
	case NoneArg:
		return "none"
	case NodeArg:
		if v.Node == nil {
			return "%<nil>"
		}
		return "%" + v.Node.Name()
	case ListArg:
		return "[" + formatArgSeq([]Arg(v)) + "]"
	case TupleArg:
		return "(" + formatArgSeq([]Arg(v)) + ")"
	default:
		return fmt.Sprintf("<%T>", a)
	}
}

func formatArgSeq(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = FormatArg(a)
	}
	return strings.Join(parts, ", ")
}

// collectNodeRefs appends every node referenced by a (recursing into
// sequences) to dst and returns the result.
func collectNodeRefs(a Arg, dst []*Node) []*Node {
	switch v := a.(type) {
	case NodeArg:
		if v.Node != nil {
			dst = append(dst, v.Node)
		}
	case ListArg:
		for _, inner := range v {
			dst = collectNodeRefs(inner, dst)
		}
	case TupleArg:
		for _, inner := range v {
			dst = collectNodeRefs(inner, dst)
		}
	}
	return dst
}

// replaceNodeRef returns a copy of a with every reference to old re-pointed
// at new. Sequences are reconstructed with their original concrete kind.
func replaceNodeRef(a Arg, old, new *Node) Arg {
	switch v := a.(type) {
	case NodeArg:
		if v.Node == old {
			return NodeArg{Node: new}
		}
		return v
	case ListArg:
		out := make(ListArg, len(v))
		for i, inner := range v {
			out[i] = replaceNodeRef(inner, old, new)
		}
		return out
	case TupleArg:
		out := make(TupleArg, len(v))
		for i, inner := range v {
			out[i] = replaceNodeRef(inner, old, new)
		}
		return out
	default:
		return a
	}
}
