package quant

// DType identifies the numeric representation of a tensor value.
//
// DTypeUnset is the zero value and means "no requirement": edges whose
// target dtype is unset (or float32) and static need no observer.
type DType string

const (
	DTypeUnset   DType = ""
	DTypeFloat32 DType = "float32"
	DTypeFloat16 DType = "float16"
	DTypeInt8    DType = "int8"
	DTypeUInt8   DType = "uint8"
	DTypeInt32   DType = "int32"
)

// ValidDTypes defines the dtypes accepted in quantization specs.
var ValidDTypes = map[DType]bool{
	DTypeFloat32: true,
	DTypeFloat16: true,
	DTypeInt8:    true,
	DTypeUInt8:   true,
	DTypeInt32:   true,
}

// IsDefault reports whether this dtype imposes no conversion requirement.
// Both the unset dtype and float32 count as "leave the value alone".
func (d DType) IsDefault() bool {
	return d == DTypeUnset || d == DTypeFloat32
}

// QScheme identifies the quantization scheme of an observer.
type QScheme string

const (
	PerTensorAffine     QScheme = "per_tensor_affine"
	PerTensorSymmetric  QScheme = "per_tensor_symmetric"
	PerChannelAffine    QScheme = "per_channel_affine"
	PerChannelSymmetric QScheme = "per_channel_symmetric"
)

// ValidQSchemes defines the accepted quantization schemes.
var ValidQSchemes = map[QScheme]bool{
	PerTensorAffine:     true,
	PerTensorSymmetric:  true,
	PerChannelAffine:    true,
	PerChannelSymmetric: true,
}

// ValueKind classifies a traced value.
type ValueKind string

const (
	KindTensor ValueKind = "tensor"
	KindScalar ValueKind = "scalar"
)

// ValueInfo is the shape-inference metadata attached to a node by tracing.
// Presence of a ValueInfo means the tracer recorded what the node produces;
// Kind distinguishes tensor values from plain scalars.
type ValueInfo struct {
	Kind  ValueKind
	DType DType
	Shape []int64
}

// IsTensor reports whether the traced value is tensor-valued.
func (v *ValueInfo) IsTensor() bool {
	return v != nil && v.Kind == KindTensor
}
