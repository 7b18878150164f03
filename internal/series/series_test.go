package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(c Calculator, prices ...float64) {
	for _, p := range prices {
		c.Update(p)
	}
}

func TestSMA_Correctness_Period3(t *testing.T) {
	// (100+102+104)/3, (102+104+103)/3, (104+103+105)/3
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102, 103, 104}

	for i, p := range prices {
		sma.Update(p)
		assert.Equal(t, i >= 2, sma.Ready(), "bar %d", i)
		if sma.Ready() {
			assert.InDelta(t, expected[i], sma.Value(), 1e-9, "bar %d", i)
		}
	}
}

func TestEMA_Correctness_Period3(t *testing.T) {
	// Seed SMA(10,11,12)=11, multiplier 0.5: 0.5*13+0.5*11=12, 0.5*14+0.5*12=13
	ema := NewEMA(3)
	feed(ema, 10, 11)
	assert.False(t, ema.Ready())
	ema.Update(12)
	require.True(t, ema.Ready())
	assert.InDelta(t, 11.0, ema.Value(), 1e-9)
	ema.Update(13)
	assert.InDelta(t, 12.0, ema.Value(), 1e-9)
	ema.Update(14)
	assert.InDelta(t, 13.0, ema.Value(), 1e-9)
}

func TestSMMA_Correctness_Period3(t *testing.T) {
	smma := NewSMMA(3)
	feed(smma, 10, 11, 12)
	assert.InDelta(t, 11.0, smma.Value(), 1e-9)
	smma.Update(13)
	assert.InDelta(t, 35.0/3.0, smma.Value(), 1e-9)
}

func TestRSI_Correctness_Period5(t *testing.T) {
	// Wilder's worked example with period 5.
	rsi := NewRSI(5)
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	want := map[int]float64{5: 68.112, 6: 72.219, 7: 76.658, 8: 81.509}

	for i, p := range prices {
		rsi.Update(p)
		assert.Equal(t, i >= 5, rsi.Ready(), "bar %d", i)
		if w, ok := want[i]; ok {
			assert.InDelta(t, w, rsi.Value(), 0.1, "bar %d", i)
		}
	}
}

func TestRSI_Extremes(t *testing.T) {
	up := NewRSI(3)
	feed(up, 1, 2, 3, 4, 5)
	assert.Equal(t, 100.0, up.Value())

	down := NewRSI(3)
	feed(down, 5, 4, 3, 2, 1)
	assert.InDelta(t, 0.0, down.Value(), 1e-9)
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	sma, ema := NewSMA(5), NewEMA(5)
	for i := 0; i < 5; i++ {
		sma.Update(100)
		ema.Update(100)
	}
	sma.Update(120)
	ema.Update(120)
	assert.Greater(t, ema.Value()-100, sma.Value()-100)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"CLOSE", "CLOSE"},
		{"close", "CLOSE"},
		{"SMA(10)", "SMA"},
		{"ema(5)", "EMA"},
		{"SMMA(7)", "SMMA"},
		{"RSI(14)", "RSI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}

	for _, bad := range []string{"", "MACD(12)", "SMA", "SMA(0)", "SMA(x)", "(10)"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestWindow_NewestFirst(t *testing.T) {
	w := NewWindow(NewSMA(2), 3)
	feed(w.calc, 0)
	for _, p := range []float64{2, 4, 6} {
		w.Update(p)
	}
	assert.True(t, w.Ready())
	assert.Equal(t, []float64{5, 3, 1}, w.Values())
}

func TestWindow_NotReadyUntilFilled(t *testing.T) {
	w := NewWindow(&Close{}, 2)
	w.Update(1.5)
	assert.False(t, w.Ready())
	w.Update(1.6)
	assert.True(t, w.Ready())
	assert.Equal(t, []float64{1.6, 1.5}, w.Values())
}
