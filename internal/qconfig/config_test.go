package qconfig

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileString(t *testing.T, src string) (*Config, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileConfig(v.LookupPath(cue.ParsePath("quantize")))
}

func TestCompileConfigFullRule(t *testing.T) {
	cfg, err := compileString(t, `
quantize: rules: [{
	name: "linear-int8"
	match: {op: "call_function", target: "aten.linear"}
	input: {dtype: "int8", observer: "histogram", qscheme: "per_tensor_symmetric", quant_min: -127, quant_max: 127}
	output: {dtype: "int8"}
}]
`)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)

	rule := cfg.Rules[0]
	assert.Equal(t, "linear-int8", rule.Name)
	assert.Equal(t, "call_function", rule.Match.Op)
	assert.Equal(t, "aten.linear", rule.Match.Target)

	require.NotNil(t, rule.Input)
	assert.Equal(t, "int8", rule.Input.DType)
	assert.Equal(t, "histogram", rule.Input.Observer)
	assert.Equal(t, "per_tensor_symmetric", rule.Input.QScheme)
	assert.Equal(t, -127, rule.Input.QuantMin)
	assert.Equal(t, 127, rule.Input.QuantMax)

	require.NotNil(t, rule.Output)
	assert.Equal(t, "int8", rule.Output.DType)
	assert.False(t, rule.ShareObservers)
	assert.False(t, rule.ReuseInput)
}

func TestCompileConfigFlagsAndDynamic(t *testing.T) {
	cfg, err := compileString(t, `
quantize: rules: [{
	name: "reshape-share"
	match: {target: "aten.reshape"}
	input: {dtype: "int8"}
	output: {dtype: "int8"}
	share_observers: true
}, {
	name: "linear-dynamic"
	match: {target: "aten.linear"}
	input: {dtype: "int8", is_dynamic: true}
}]
`)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 2)

	assert.True(t, cfg.Rules[0].ShareObservers)
	assert.True(t, cfg.Rules[1].Input.IsDynamic)
	assert.Nil(t, cfg.Rules[1].Output)
}

func TestCompileConfigMissingRules(t *testing.T) {
	_, err := compileString(t, `quantize: {}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules list is required")
}

func TestCompileConfigEmptyRules(t *testing.T) {
	_, err := compileString(t, `quantize: rules: []`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one rule is required")
}

func TestCompileConfigMissingRuleName(t *testing.T) {
	_, err := compileString(t, `
quantize: rules: [{
	match: {target: "aten.linear"}
	input: {dtype: "int8"}
}]
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule name is required")
}

func TestCompileConfigEmptyMatch(t *testing.T) {
	_, err := compileString(t, `
quantize: rules: [{
	name: "bad"
	match: {}
	input: {dtype: "int8"}
}]
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match must set op, target, or both")
}

func TestCompileConfigSpecWithoutDType(t *testing.T) {
	_, err := compileString(t, `
quantize: rules: [{
	name: "bad"
	match: {target: "aten.linear"}
	input: {observer: "minmax"}
}]
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec dtype is required")
}
