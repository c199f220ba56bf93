package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Node types.
const (
	TypeAgent      = "agent"
	TypeSequential = "sequential"
	TypeParallel   = "parallel"
	TypeLoop       = "loop"
)

// Definition is a named pipeline as written in YAML.
type Definition struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Query is used when a run is started without one.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`

	// Output names the state key holding the pipeline's final artifact.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	Root NodeSpec `yaml:"root" json:"root" validate:"required"`
}

// NodeSpec describes one node of the tree.
type NodeSpec struct {
	Type        string `yaml:"type" json:"type" validate:"required,oneof=agent sequential parallel loop"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Agent fields.
	Instruction string     `yaml:"instruction,omitempty" json:"instruction,omitempty"`
	Model       string     `yaml:"model,omitempty" json:"model,omitempty"`
	Tools       []string   `yaml:"tools,omitempty" json:"tools,omitempty" validate:"dive,required"`
	AgentTools  []NodeSpec `yaml:"agent_tools,omitempty" json:"agent_tools,omitempty" validate:"dive"`
	OutputKey   string     `yaml:"output_key,omitempty" json:"output_key,omitempty"`
	Stream      bool       `yaml:"stream,omitempty" json:"stream,omitempty"`
	MaxTurns    int        `yaml:"max_turns,omitempty" json:"max_turns,omitempty" validate:"min=0"`

	// Composite fields.
	MaxIterations  int        `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty" validate:"min=0"`
	MaxConcurrency int        `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty" validate:"min=0"`
	Children       []NodeSpec `yaml:"children,omitempty" json:"children,omitempty" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and the per-type field rules. It does
// not check template keys; agent.Validate does that on the built tree.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("pipeline %s: %w", d.Name, err)
	}

	var errs []error
	checkNode(d.Root, d.Root.Name, &errs)
	if len(errs) > 0 {
		return fmt.Errorf("pipeline %s: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

func checkNode(n NodeSpec, path string, errs *[]error) {
	fail := func(format string, args ...any) {
		*errs = append(*errs, fmt.Errorf("%s: "+format, append([]any{path}, args...)...))
	}

	switch n.Type {
	case TypeAgent:
		if len(n.Children) > 0 {
			fail("agent must not have children")
		}
	default:
		if n.Instruction != "" || n.OutputKey != "" || len(n.Tools) > 0 || len(n.AgentTools) > 0 {
			fail("%s node only takes children", n.Type)
		}
	}
	if n.Type == TypeLoop && n.MaxIterations < 1 {
		fail("loop requires max_iterations >= 1")
	}
	if n.Type != TypeLoop && n.MaxIterations != 0 {
		fail("max_iterations only applies to loops")
	}
	if n.Type != TypeParallel && n.MaxConcurrency != 0 {
		fail("max_concurrency only applies to parallel nodes")
	}

	for _, c := range n.AgentTools {
		checkNode(c, path+"/"+c.Name, errs)
	}
	for _, c := range n.Children {
		checkNode(c, path+"/"+c.Name, errs)
	}
}

// Parse decodes and validates a YAML definition. Unknown fields are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}

	def.Query = strings.TrimSpace(def.Query)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile reads and parses a YAML definition from path.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
