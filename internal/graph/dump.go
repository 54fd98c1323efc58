package graph

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Dump renders the module as deterministic text: the observer attribute
// table in registration order followed by the nodes in program order.
//
// Names are NFC-normalized at this serialization boundary so that dumps of
// graphs loaded from differently-encoded sources compare equal. Dumps are
// the unit of golden-file comparison in conformance scenarios.
func (m *Module) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", norm.NFC.String(m.graph.Name()))

	for _, name := range m.observerOrder {
		d := m.observers[name]
		mode := "static"
		if d.IsDynamic {
			mode = "dynamic"
		}
		fmt.Fprintf(&b, "  attr %s: %s dtype=%s mode=%s qscheme=%s range=[%d, %d]\n",
			norm.NFC.String(name), d.Kind, d.DType, mode, d.QScheme, d.QuantMin, d.QuantMax)
	}

	fmt.Fprintf(&b, "graph:\n")
	for _, n := range m.graph.nodes {
		fmt.Fprintf(&b, "  %s\n", norm.NFC.String(n.String()))
	}
	return b.String()
}
