// Package series computes the indicator values a charting platform sends in
// BAR packets, from a stream of close prices. Each Calculator is O(1) per
// update.
package series

import (
	"fmt"
	"strconv"
	"strings"
)

// Calculator consumes close prices one bar at a time.
type Calculator interface {
	Name() string
	Update(price float64)
	Value() float64
	Ready() bool
}

// Parse builds a Calculator from a field name such as "CLOSE", "SMA(10)",
// "EMA(5)", "SMMA(7)" or "RSI(14)". Names are case-insensitive.
func Parse(name string) (Calculator, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "CLOSE" {
		return &Close{}, nil
	}

	open := strings.IndexByte(upper, '(')
	if open <= 0 || !strings.HasSuffix(upper, ")") {
		return nil, fmt.Errorf("series: unsupported field %q", name)
	}
	period, err := strconv.Atoi(upper[open+1 : len(upper)-1])
	if err != nil || period < 1 {
		return nil, fmt.Errorf("series: bad period in %q", name)
	}

	switch upper[:open] {
	case "SMA":
		return NewSMA(period), nil
	case "EMA":
		return NewEMA(period), nil
	case "SMMA":
		return NewSMMA(period), nil
	case "RSI":
		return NewRSI(period), nil
	default:
		return nil, fmt.Errorf("series: unsupported field %q", name)
	}
}

// Close passes the price through.
type Close struct {
	current float64
	ready   bool
}

func (c *Close) Name() string         { return "CLOSE" }
func (c *Close) Update(price float64) { c.current, c.ready = price, true }
func (c *Close) Value() float64       { return c.current }
func (c *Close) Ready() bool          { return c.ready }

// Window keeps the last n values of a Calculator, newest first, the order
// platforms use for bar-indexed buffers.
type Window struct {
	calc Calculator
	vals []float64
	seen int
}

// NewWindow tracks the last n values of calc.
func NewWindow(calc Calculator, n int) *Window {
	if n < 1 {
		n = 1
	}
	return &Window{calc: calc, vals: make([]float64, n)}
}

// Update feeds price to the calculator and records its value once ready.
func (w *Window) Update(price float64) {
	w.calc.Update(price)
	if !w.calc.Ready() {
		return
	}
	copy(w.vals[1:], w.vals[:len(w.vals)-1])
	w.vals[0] = w.calc.Value()
	w.seen++
}

// Ready reports whether every slot holds a computed value.
func (w *Window) Ready() bool { return w.seen >= len(w.vals) }

// Values returns the window, newest first. The slice is reused.
func (w *Window) Values() []float64 { return w.vals }
