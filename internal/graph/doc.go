// Package graph implements the traced computation graph that the
// observer-insertion pass rewrites in place.
//
// A Graph is an ordered list of operation nodes. Each Node has positional
// arguments (the sealed Arg variant: scalars, node references, and list or
// tuple sequences), a deterministic ordered user list, and optional traced
// metadata (quantization annotation and value info).
//
// Mutation primitives are explicit and keep the user lists consistent:
// Node.SetArgs replaces the full argument tuple atomically,
// Node.ReplaceInputWith re-points one producer, and Graph.InsertAfter
// splices a new node into program order. Callers that mutate while
// iterating must snapshot the node list first (Graph.Nodes returns a copy).
package graph
