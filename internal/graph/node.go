package graph

import (
	"fmt"

	"github.com/quantfx/quantfx/internal/quant"
)

// Op is the operation kind of a node.
type Op string

const (
	OpPlaceholder  Op = "placeholder"
	OpCallModule   Op = "call_module"
	OpCallMethod   Op = "call_method"
	OpCallFunction Op = "call_function"
	OpGetAttr      Op = "get_attr"
	OpOutput       Op = "output"
)

// ValidOps defines the accepted operation kinds.
var ValidOps = map[Op]bool{
	OpPlaceholder:  true,
	OpCallModule:   true,
	OpCallMethod:   true,
	OpCallFunction: true,
	OpGetAttr:      true,
	OpOutput:       true,
}

// Meta carries the optional per-node side metadata the pass consults:
// the quantization annotation and the traced value info. Either may be nil.
type Meta struct {
	Annotation *quant.Annotation
	Val        *quant.ValueInfo
}

// Node is one operation in a Graph.
//
// The argument list is replaceable wholesale via SetArgs; users are tracked
// in deterministic first-use order and updated by every mutation primitive.
type Node struct {
	graph  *Graph
	name   string
	op     Op
	target string
	args   []Arg
	kwargs map[string]Arg
	users  []*Node
	meta   Meta
}

// Name returns the node's unique name within its graph.
func (n *Node) Name() string { return n.name }

// Op returns the node's operation kind.
func (n *Node) Op() Op { return n.op }

// Target returns what the node calls: an attribute path for call_module /
// get_attr, a function name for call_function, a method name for
// call_method. Empty for placeholders and output.
func (n *Node) Target() string { return n.target }

// Graph returns the owning graph.
func (n *Node) Graph() *Graph { return n.graph }

// Args returns the node's positional arguments. The returned slice is the
// live backing slice; replace it only through SetArgs.
func (n *Node) Args() []Arg { return n.args }

// Kwargs returns the node's keyword arguments. The normalized graph form
// consumed by the observer pass carries none; the pass asserts this.
func (n *Node) Kwargs() map[string]Arg { return n.kwargs }

// SetKwarg records a keyword argument. Keyword arguments do not
// participate in user tracking; graphs handed to the observer pass must
// not carry any.
func (n *Node) SetKwarg(name string, a Arg) { n.kwargs[name] = a }

// Meta returns a pointer to the node's side metadata for in-place update.
func (n *Node) Meta() *Meta { return &n.meta }

// Annotation returns the node's quantization annotation, or nil.
func (n *Node) Annotation() *quant.Annotation { return n.meta.Annotation }

// Users returns a snapshot of the node's consumers in first-use order.
// Mutating the graph does not affect a previously returned snapshot, so it
// is safe to iterate while redirecting consumers.
func (n *Node) Users() []*Node {
	out := make([]*Node, len(n.users))
	copy(out, n.users)
	return out
}

// NumUsers returns the number of distinct consumers.
func (n *Node) NumUsers() int { return len(n.users) }

// SetArgs atomically replaces the node's full positional argument list,
// updating the user lists of every producer that gained or lost this node
// as a consumer.
func (n *Node) SetArgs(args []Arg) {
	oldRefs := n.referencedNodes()
	n.args = args
	newRefs := n.referencedNodes()

	newSet := make(map[*Node]bool, len(newRefs))
	for _, p := range newRefs {
		newSet[p] = true
	}
	for _, p := range oldRefs {
		if !newSet[p] {
			p.removeUser(n)
		}
	}
	for _, p := range newRefs {
		p.addUser(n)
	}
}

// ReplaceInputWith re-points every reference to old in this node's
// arguments at new. No-op if old is not referenced.
func (n *Node) ReplaceInputWith(old, new *Node) {
	if old == new {
		return
	}
	refs := n.referencedNodes()
	found := false
	for _, p := range refs {
		if p == old {
			found = true
			break
		}
	}
	if !found {
		return
	}
	newArgs := make([]Arg, len(n.args))
	for i, a := range n.args {
		newArgs[i] = replaceNodeRef(a, old, new)
	}
	n.SetArgs(newArgs)
}

// referencedNodes returns the distinct producers referenced by the current
// argument list, in argument order.
func (n *Node) referencedNodes() []*Node {
	var refs []*Node
	for _, a := range n.args {
		refs = collectNodeRefs(a, refs)
	}
	seen := make(map[*Node]bool, len(refs))
	out := refs[:0]
	for _, p := range refs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// addUser records u as a consumer, preserving first-use order.
func (n *Node) addUser(u *Node) {
	for _, existing := range n.users {
		if existing == u {
			return
		}
	}
	n.users = append(n.users, u)
}

// removeUser drops u from the consumer list.
func (n *Node) removeUser(u *Node) {
	for i, existing := range n.users {
		if existing == u {
			n.users = append(n.users[:i], n.users[i+1:]...)
			return
		}
	}
}

// String renders the node in dump form.
func (n *Node) String() string {
	if n.target != "" {
		return fmt.Sprintf("%%%s = %s[target=%s](%s)", n.name, n.op, n.target, formatArgSeq(n.args))
	}
	return fmt.Sprintf("%%%s = %s(%s)", n.name, n.op, formatArgSeq(n.args))
}
