package regression

import (
	"context"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// LinearSpec is the on-disk form of a linear model:
//
//	name: sma-diff
//	activation: tanh
//	weights:
//	  - [0.42, -0.13, 0.07]
//	bias: [0.01]
type LinearSpec struct {
	Name       string      `yaml:"name"`
	Activation string      `yaml:"activation"` // "linear" (default) or "tanh"
	Weights    [][]float64 `yaml:"weights"`    // one row per output
	Bias       []float64   `yaml:"bias"`
}

// Linear is a dense single-layer model: out = act(W·x + b).
type Linear struct {
	name    string
	tanh    bool
	weights [][]float64
	bias    []float64
}

// NewLinear validates spec and builds the model.
func NewLinear(spec LinearSpec) (*Linear, error) {
	if len(spec.Weights) == 0 {
		return nil, fmt.Errorf("linear model %q: no weight rows", spec.Name)
	}
	in := len(spec.Weights[0])
	if in == 0 {
		return nil, fmt.Errorf("linear model %q: empty weight row", spec.Name)
	}
	for i, row := range spec.Weights {
		if len(row) != in {
			return nil, fmt.Errorf("linear model %q: weight row %d has %d inputs, want %d", spec.Name, i, len(row), in)
		}
	}
	bias := spec.Bias
	if len(bias) == 0 {
		bias = make([]float64, len(spec.Weights))
	}
	if len(bias) != len(spec.Weights) {
		return nil, fmt.Errorf("linear model %q: %d bias terms for %d outputs", spec.Name, len(bias), len(spec.Weights))
	}

	var useTanh bool
	switch spec.Activation {
	case "", "linear":
	case "tanh":
		useTanh = true
	default:
		return nil, fmt.Errorf("linear model %q: unknown activation %q", spec.Name, spec.Activation)
	}

	return &Linear{
		name:    spec.Name,
		tanh:    useTanh,
		weights: spec.Weights,
		bias:    bias,
	}, nil
}

// LoadLinear reads a YAML model file.
func LoadLinear(path string) (*Linear, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var spec LinearSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return NewLinear(spec)
}

// Name returns the model name from its file.
func (l *Linear) Name() string { return l.name }

func (l *Linear) InputCount() int  { return len(l.weights[0]) }
func (l *Linear) OutputCount() int { return len(l.weights) }

// Compute evaluates the model.
func (l *Linear) Compute(_ context.Context, input []float64) ([]float64, error) {
	if len(input) != l.InputCount() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), l.InputCount())
	}
	out := make([]float64, len(l.weights))
	for j, row := range l.weights {
		sum := l.bias[j]
		for i, w := range row {
			sum += w * input[i]
		}
		if l.tanh {
			sum = math.Tanh(sum)
		}
		out[j] = sum
	}
	return out, nil
}
