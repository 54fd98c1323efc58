package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a traced graph, a
// quantization config to annotate it with, and assertions over the
// rewritten graph.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the path to the traced-graph YAML file.
	// Relative paths resolve against the scenario file location.
	Graph string `yaml:"graph"`

	// QConfig is the path to the CUE quantization config directory.
	// Relative paths resolve against the scenario file location.
	QConfig string `yaml:"qconfig"`

	// QAT prepares for quantization-aware training instead of post-training
	// observation.
	QAT bool `yaml:"qat,omitempty"`

	// Assertions validate the rewritten graph and the pass trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one property of the rewritten graph.
type Assertion struct {
	// Type specifies the assertion type:
	// - "observer_count": the module holds exactly Count observer attributes
	// - "node_count": the graph holds exactly Count nodes
	// - "edge_observed": the registry bound the (Producer, Consumer) edge,
	//   or the Producer node form when Consumer is empty
	// - "consumers_redirected": every user of Node is an observer
	// - "args_unchanged": no argument of Node references an observer
	Type string `yaml:"type"`

	// Count is the expected number (observer_count, node_count).
	Count int `yaml:"count,omitempty"`

	// Producer / Consumer name the registry entry (edge_observed).
	Producer string `yaml:"producer,omitempty"`
	Consumer string `yaml:"consumer,omitempty"`

	// DType and Dynamic describe the bound descriptor (edge_observed).
	DType   string `yaml:"dtype,omitempty"`
	Dynamic bool   `yaml:"dynamic,omitempty"`

	// Node names the target node (consumers_redirected, args_unchanged).
	Node string `yaml:"node,omitempty"`
}

// Assertion type constants.
const (
	AssertObserverCount       = "observer_count"
	AssertNodeCount           = "node_count"
	AssertEdgeObserved        = "edge_observed"
	AssertConsumersRedirected = "consumers_redirected"
	AssertArgsUnchanged       = "args_unchanged"
)

// LoadScenario reads and parses a scenario YAML file. Graph and qconfig
// paths resolve relative to the scenario file's directory. Returns an
// error if the file doesn't exist, is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(base, scenario.Graph)
	}
	if scenario.QConfig != "" && !filepath.IsAbs(scenario.QConfig) {
		scenario.QConfig = filepath.Join(base, scenario.QConfig)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if s.QConfig == "" {
		return fmt.Errorf("qconfig is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return fmt.Errorf("graph file not found: %s", s.Graph)
	}
	if _, err := os.Stat(s.QConfig); os.IsNotExist(err) {
		return fmt.Errorf("qconfig directory not found: %s", s.QConfig)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertObserverCount, AssertNodeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertEdgeObserved:
		if a.Producer == "" {
			return fmt.Errorf("assertions[%d]: producer is required for edge_observed", index)
		}
	case AssertConsumersRedirected, AssertArgsUnchanged:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
