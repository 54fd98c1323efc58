package harness

import (
	"fmt"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/prepare"
)

// evaluate checks one assertion against the rewritten module and trace.
// Returns "" when the assertion holds, a failure description otherwise.
func evaluate(m *graph.Module, trace *prepare.Trace, a *Assertion) string {
	switch a.Type {
	case AssertObserverCount:
		if got := m.NumObservers(); got != a.Count {
			return fmt.Sprintf("expected %d observer(s), got %d", a.Count, got)
		}
	case AssertNodeCount:
		if got := m.Graph().Len(); got != a.Count {
			return fmt.Sprintf("expected %d node(s), got %d", a.Count, got)
		}
	case AssertEdgeObserved:
		return evaluateEdgeObserved(trace, a)
	case AssertConsumersRedirected:
		return evaluateConsumersRedirected(m, a)
	case AssertArgsUnchanged:
		return evaluateArgsUnchanged(m, a)
	}
	return ""
}

func evaluateEdgeObserved(trace *prepare.Trace, a *Assertion) string {
	for _, edge := range trace.Edges {
		if edge.Producer != a.Producer || edge.Consumer != a.Consumer {
			continue
		}
		if a.DType != "" && string(edge.DType) != a.DType {
			return fmt.Sprintf("edge %s bound with dtype %s, expected %s", edgeName(a), edge.DType, a.DType)
		}
		if edge.Dynamic != a.Dynamic {
			return fmt.Sprintf("edge %s bound with dynamic=%v, expected %v", edgeName(a), edge.Dynamic, a.Dynamic)
		}
		return ""
	}
	return fmt.Sprintf("no registry entry for %s", edgeName(a))
}

func evaluateConsumersRedirected(m *graph.Module, a *Assertion) string {
	n := m.Graph().Node(a.Node)
	if n == nil {
		return fmt.Sprintf("node %q not in graph", a.Node)
	}
	if n.NumUsers() == 0 {
		return fmt.Sprintf("node %q has no users", a.Node)
	}
	for _, u := range n.Users() {
		if !m.IsObserverNode(u) {
			return fmt.Sprintf("user %q of node %q is not an observer", u.Name(), a.Node)
		}
	}
	return ""
}

func evaluateArgsUnchanged(m *graph.Module, a *Assertion) string {
	n := m.Graph().Node(a.Node)
	if n == nil {
		return fmt.Sprintf("node %q not in graph", a.Node)
	}
	for _, arg := range n.Args() {
		if obs := observerRef(m, arg); obs != "" {
			return fmt.Sprintf("node %q argument references observer %q", a.Node, obs)
		}
	}
	return ""
}

// observerRef returns the name of the first observer referenced by a,
// recursing into sequences, or "".
func observerRef(m *graph.Module, a graph.Arg) string {
	switch v := a.(type) {
	case graph.NodeArg:
		if m.IsObserverNode(v.Node) {
			return v.Node.Name()
		}
	case graph.ListArg:
		for _, inner := range v {
			if obs := observerRef(m, inner); obs != "" {
				return obs
			}
		}
	case graph.TupleArg:
		for _, inner := range v {
			if obs := observerRef(m, inner); obs != "" {
				return obs
			}
		}
	}
	return ""
}

func edgeName(a *Assertion) string {
	if a.Consumer == "" {
		return a.Producer
	}
	return a.Producer + "->" + a.Consumer
}
