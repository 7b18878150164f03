package regression

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstant(t *testing.T) {
	m := Constant(3, 0.5)
	out, err := m.Compute(context.Background(), []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, out)

	_, err = m.Compute(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrInputSize)
}

func TestLoadLinear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: sma-diff
activation: tanh
weights:
  - [0.5, -0.25, 1.0]
bias: [0.1]
`), 0o644))

	m, err := LoadLinear(path)
	require.NoError(t, err)
	assert.Equal(t, "sma-diff", m.Name())
	assert.Equal(t, 3, m.InputCount())
	assert.Equal(t, 1, m.OutputCount())

	out, err := m.Compute(context.Background(), []float64{1, 2, 0.5})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, math.Tanh(0.5-0.5+0.5+0.1), out[0], 1e-12)
}

func TestNewLinear_Invalid(t *testing.T) {
	cases := map[string]LinearSpec{
		"no weights":   {Name: "a"},
		"ragged":       {Name: "b", Weights: [][]float64{{1, 2}, {1}}},
		"bias count":   {Name: "c", Weights: [][]float64{{1}}, Bias: []float64{1, 2}},
		"bad function": {Name: "d", Weights: [][]float64{{1}}, Activation: "relu6"},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLinear(spec)
			assert.Error(t, err)
		})
	}
}

func TestLinear_DefaultBiasIsZero(t *testing.T) {
	m, err := NewLinear(LinearSpec{Weights: [][]float64{{2, 3}}})
	require.NoError(t, err)
	out, err := m.Compute(context.Background(), []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, out)
}

func TestHTTPModel_Compute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req computeReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sum := 0.0
		for _, v := range req.Input {
			sum += v
		}
		json.NewEncoder(w).Encode(computeResp{Output: []float64{sum}})
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL, WithShape(3, 1))
	out, err := m.Compute(context.Background(), []float64{0.25, 0.25, 0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, out)

	_, err = m.Compute(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrInputSize)
}

func TestHTTPModel_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPModel(srv.URL).Compute(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
