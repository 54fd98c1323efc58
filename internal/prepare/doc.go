// Package prepare implements observer insertion for post-training and QAT
// quantization of a traced computation graph.
//
// Prepare walks the graph once in program order. For every annotated node
// it rewrites the positional arguments, inserting an observer (or
// fake-quantize, under QAT) wherever a tensor's required numeric
// representation changes between producer and consumer, then inserts an
// output observer when the node's own output carries a requirement.
// Observers shared across consumers are deduplicated through the Registry,
// which maps edges and nodes to descriptor instances and only ever grows.
//
// Precondition failures (a producer that should already carry an observer,
// keyword arguments where none are allowed, an unbound producer) indicate
// the traversal-order assumption was violated and abort the pass with an
// InvariantError; there is no partial-graph return mode.
package prepare
