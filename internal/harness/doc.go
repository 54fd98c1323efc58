// Package harness runs conformance scenarios: YAML files naming a traced
// graph, a quantization config, and assertions over the rewritten graph,
// with optional golden comparison of the canonical dump.
package harness
