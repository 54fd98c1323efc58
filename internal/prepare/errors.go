package prepare

import (
	"errors"
	"fmt"
)

// InvariantCode categorizes fatal pass invariant violations.
type InvariantCode string

const (
	// ErrCodeProducerNotObserved indicates an edge whose input and output
	// requirements coincide but whose producer is not an inserted observer.
	ErrCodeProducerNotObserved InvariantCode = "PRODUCER_NOT_OBSERVED"

	// ErrCodeUnboundProducer indicates a producer that should already have
	// a registry entry but does not: the traversal processed a consumer
	// before its producer.
	ErrCodeUnboundProducer InvariantCode = "UNBOUND_PRODUCER"

	// ErrCodeKwargsPresent indicates keyword arguments on a node in a graph
	// form that must carry none.
	ErrCodeKwargsPresent InvariantCode = "KWARGS_PRESENT"

	// ErrCodeRegistryConflict indicates an attempt to rebind a registry key
	// to a different descriptor within one pass run.
	ErrCodeRegistryConflict InvariantCode = "REGISTRY_CONFLICT"

	// ErrCodeMissingDescriptor indicates a requirement that resolved to a
	// non-default dtype but produced no descriptor to observe it with.
	ErrCodeMissingDescriptor InvariantCode = "MISSING_DESCRIPTOR"

	// ErrCodeMalformedObserver indicates an observer node whose sole input
	// is not a plain node reference.
	ErrCodeMalformedObserver InvariantCode = "MALFORMED_OBSERVER"
)

// InvariantError is a fatal precondition failure. It signals a pass-ordering
// bug in the caller or an earlier pass, not a recoverable data condition,
// so Prepare aborts immediately when one is raised.
type InvariantError struct {
	Code    InvariantCode
	Node    string // offending node name
	Edge    string // offending edge, "producer->consumer", if applicable
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	switch {
	case e.Edge != "":
		return fmt.Sprintf("%s: %s (edge=%s)", e.Code, e.Message, e.Edge)
	case e.Node != "":
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsInvariantError reports whether err is (or wraps) an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
