package graph

import (
	"fmt"
)

// Graph is an ordered directed graph of operation nodes.
//
// Node order is program order: producers precede consumers. Passes that
// mutate the graph while traversing must iterate over a snapshot
// (see Nodes); insertion splices new nodes into the live order.
type Graph struct {
	name   string
	nodes  []*Node
	byName map[string]*Node
	seq    map[string]int
}

// New creates an empty graph with the given name.
func New(name string) *Graph {
	return &Graph{
		name:   name,
		byName: make(map[string]*Node),
		seq:    make(map[string]int),
	}
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Len returns the current number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given name, or nil.
func (g *Graph) Node(name string) *Node { return g.byName[name] }

// Nodes returns a snapshot of the node list in program order. The snapshot
// is stable under subsequent graph mutation.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Output returns the graph's designated output node, or nil if the graph
// has none yet.
func (g *Graph) Output() *Node {
	for i := len(g.nodes) - 1; i >= 0; i-- {
		if g.nodes[i].op == OpOutput {
			return g.nodes[i]
		}
	}
	return nil
}

// AddNode appends a new node at the end of program order.
// The name must be unique within the graph.
func (g *Graph) AddNode(op Op, name, target string, args []Arg) (*Node, error) {
	n, err := g.newNode(op, name, target)
	if err != nil {
		return nil, err
	}
	g.nodes = append(g.nodes, n)
	n.SetArgs(args)
	return n, nil
}

// InsertAfter splices a new node into program order immediately after ref.
// Used by observer insertion so the inserted node sits between its producer
// and the producer's downstream consumers.
func (g *Graph) InsertAfter(ref *Node, op Op, name, target string, args []Arg) (*Node, error) {
	idx := g.indexOf(ref)
	if idx < 0 {
		return nil, fmt.Errorf("graph %s: insert after unknown node %s", g.name, ref.Name())
	}
	n, err := g.newNode(op, name, target)
	if err != nil {
		return nil, err
	}
	g.nodes = append(g.nodes, nil)
	copy(g.nodes[idx+2:], g.nodes[idx+1:])
	g.nodes[idx+1] = n
	n.SetArgs(args)
	return n, nil
}

// EraseNode removes a node that has no remaining consumers, detaching it
// from the user lists of its producers.
func (g *Graph) EraseNode(n *Node) error {
	if len(n.users) > 0 {
		return fmt.Errorf("graph %s: cannot erase node %s with %d user(s)", g.name, n.name, len(n.users))
	}
	idx := g.indexOf(n)
	if idx < 0 {
		return fmt.Errorf("graph %s: erase unknown node %s", g.name, n.name)
	}
	n.SetArgs(nil)
	g.nodes = append(g.nodes[:idx], g.nodes[idx+1:]...)
	delete(g.byName, n.name)
	n.graph = nil
	return nil
}

// FreshName returns a name of the form prefix_N that is not yet used in
// the graph. Counters are per prefix and never reused within one graph, so
// generated names are stable across a single pass run.
func (g *Graph) FreshName(prefix string) string {
	for {
		name := fmt.Sprintf("%s_%d", prefix, g.seq[prefix])
		g.seq[prefix]++
		if _, taken := g.byName[name]; !taken {
			return name
		}
	}
}

func (g *Graph) newNode(op Op, name, target string) (*Node, error) {
	if !ValidOps[op] {
		return nil, fmt.Errorf("graph %s: invalid op %q for node %s", g.name, op, name)
	}
	if name == "" {
		return nil, fmt.Errorf("graph %s: node name is required", g.name)
	}
	if _, exists := g.byName[name]; exists {
		return nil, fmt.Errorf("graph %s: duplicate node name %q", g.name, name)
	}
	n := &Node{
		graph:  g,
		name:   name,
		op:     op,
		target: target,
		kwargs: map[string]Arg{},
	}
	g.byName[name] = n
	return n, nil
}

func (g *Graph) indexOf(n *Node) int {
	for i, candidate := range g.nodes {
		if candidate == n {
			return i
		}
	}
	return -1
}

// Validate checks structural consistency: every referenced producer is a
// member of this graph and precedes its consumer, and user lists agree
// with argument lists.
func (g *Graph) Validate() error {
	pos := make(map[*Node]int, len(g.nodes))
	for i, n := range g.nodes {
		pos[n] = i
	}
	for i, n := range g.nodes {
		for _, p := range n.referencedNodes() {
			j, ok := pos[p]
			if !ok {
				return fmt.Errorf("graph %s: node %s references %s which is not in the graph", g.name, n.name, p.name)
			}
			if j >= i {
				return fmt.Errorf("graph %s: node %s references %s before it is defined", g.name, n.name, p.name)
			}
			if !containsNode(p.users, n) {
				return fmt.Errorf("graph %s: node %s missing from user list of %s", g.name, n.name, p.name)
			}
		}
		for _, u := range n.users {
			if !containsNode(u.referencedNodes(), n) {
				return fmt.Errorf("graph %s: stale user %s recorded on %s", g.name, u.name, n.name)
			}
		}
	}
	return nil
}

func containsNode(nodes []*Node, want *Node) bool {
	for _, n := range nodes {
		if n == want {
			return true
		}
	}
	return false
}
