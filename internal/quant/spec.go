package quant

import "fmt"

// ObserverKind selects the statistics-collection strategy of an observer.
type ObserverKind string

const (
	ObserverMinMax              ObserverKind = "minmax"
	ObserverMovingAverageMinMax ObserverKind = "moving_average_minmax"
	ObserverHistogram           ObserverKind = "histogram"
	ObserverPlaceholder         ObserverKind = "placeholder"
	FakeQuantize                ObserverKind = "fake_quantize"
)

// ValidObserverKinds defines the accepted observer kinds.
var ValidObserverKinds = map[ObserverKind]bool{
	ObserverMinMax:              true,
	ObserverMovingAverageMinMax: true,
	ObserverHistogram:           true,
	ObserverPlaceholder:         true,
	FakeQuantize:                true,
}

// EdgeRef names an edge or a node in annotation terms, before any graph
// rewriting has happened. An empty Consumer refers to the producer node's
// output as a whole rather than one specific use of it.
type EdgeRef struct {
	Producer string `yaml:"producer"`
	Consumer string `yaml:"consumer,omitempty"`
}

// Spec describes the numeric representation required on one edge or output.
//
// A Spec is configuration, not an observer: the pass turns specs into
// Descriptor instances, and sharing is expressed by SharedWith, which makes
// the pass reuse the descriptor already bound to the referenced edge or node
// instead of creating a fresh one.
type Spec struct {
	DType      DType
	IsDynamic  bool
	QScheme    QScheme
	Observer   ObserverKind
	QuantMin   int
	QuantMax   int
	SharedWith *EdgeRef
}

// Descriptor is one observer / fake-quantize instance.
//
// Descriptors are always handled by pointer: multiple registry entries
// referencing the same *Descriptor is how observer sharing is represented,
// and identity comparison is meaningful.
//
// Scale and ZeroPoint are populated by calibration, which is out of scope
// here; they are carried so that a calibrated descriptor round-trips.
type Descriptor struct {
	Kind      ObserverKind
	DType     DType
	IsDynamic bool
	QScheme   QScheme
	QuantMin  int
	QuantMax  int
	Scale     float64
	ZeroPoint int64
}

// NewDescriptor materializes a descriptor from a spec.
//
// Under QAT the observer kind is promoted to a fake-quantize so that the
// prepared graph simulates quantization numerics during training.
func NewDescriptor(s *Spec, isQAT bool) *Descriptor {
	kind := s.Observer
	if kind == "" {
		kind = ObserverMinMax
	}
	if isQAT {
		kind = FakeQuantize
	}
	scheme := s.QScheme
	if scheme == "" {
		scheme = PerTensorAffine
	}
	qmin, qmax := s.QuantMin, s.QuantMax
	if qmin == 0 && qmax == 0 {
		qmin, qmax = defaultQuantRange(s.DType)
	}
	return &Descriptor{
		Kind:      kind,
		DType:     s.DType,
		IsDynamic: s.IsDynamic,
		QScheme:   scheme,
		QuantMin:  qmin,
		QuantMax:  qmax,
	}
}

// defaultQuantRange returns the full representable range for a dtype.
func defaultQuantRange(d DType) (int, int) {
	switch d {
	case DTypeInt8:
		return -128, 127
	case DTypeUInt8:
		return 0, 255
	case DTypeInt32:
		return -(1 << 31), 1<<31 - 1
	default:
		return 0, 0
	}
}

// DTypeAndDynamic derives the (target dtype, is-dynamic) pair from a
// descriptor. A nil descriptor means no requirement: (unset, static).
func DTypeAndDynamic(d *Descriptor) (DType, bool) {
	if d == nil {
		return DTypeUnset, false
	}
	return d.DType, d.IsDynamic
}

// String summarizes a descriptor for logs and diagnostics.
func (d *Descriptor) String() string {
	mode := "static"
	if d.IsDynamic {
		mode = "dynamic"
	}
	return fmt.Sprintf("%s(%s, %s)", d.Kind, d.DType, mode)
}
