package timesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterBootstrap(t *testing.T) {
	f := NewFilter()
	assert.False(t, f.Synchronized())

	f.Update(100, 10, 0)
	assert.False(t, f.Synchronized())
	assert.Equal(t, 1, f.SampleCount())
	assert.Equal(t, int64(100), f.OffsetMicros())

	f.Update(120, 10, 1_000_000)
	assert.True(t, f.Synchronized())
	assert.Equal(t, int64(120), f.OffsetMicros())
	assert.InDelta(t, 20e-6, f.Drift(), 1e-9)

	assert.Equal(t, int64(10), f.ErrorMicros())
	pAfterTwo := f.pOO

	f.Update(140, 10, 2_000_000)
	f.Update(160, 10, 3_000_000)

	assert.True(t, f.Synchronized())
	// A consistent 20 µs/s drift keeps residuals tiny; the variance
	// must stay finite and shrink as measurements agree.
	assert.Greater(t, f.ErrorMicros(), int64(0))
	assert.Less(t, f.pOO, pAfterTwo)
	assert.InDelta(t, 20e-6, f.Drift(), 5e-6)
	assert.InDelta(t, 160, float64(f.OffsetMicros()), 5)
}

func TestFilterDedupesRepeatedTimestamp(t *testing.T) {
	f := NewFilter()
	f.Update(100, 10, 1_000)
	f.Update(500, 10, 1_000) // retransmit, ignored
	assert.Equal(t, 1, f.SampleCount())
	assert.Equal(t, int64(100), f.OffsetMicros())
}

func TestFilterFirstSampleAtZero(t *testing.T) {
	// t=0 must be a valid first sample, not mistaken for a duplicate.
	f := NewFilter()
	f.Update(100, 10, 0)
	assert.Equal(t, 1, f.SampleCount())
}

func TestFilterProjection(t *testing.T) {
	// Pin the state via two exact samples: offset 1_000_000, zero
	// drift, last update 5_000_000.
	f := NewFilter()
	f.Update(1_000_000, 10, 4_000_000)
	f.Update(1_000_000, 10, 5_000_000)

	require.True(t, f.Synchronized())
	assert.InDelta(t, 0, f.Drift(), 1e-12)

	assert.Equal(t, int64(11_000_000), f.ServerFromClient(10_000_000))
	assert.Equal(t, int64(10_000_000), f.ClientFromServer(11_000_000))
}

func TestFilterProjectionInverse(t *testing.T) {
	f := NewFilter()
	f.Update(250_000, 20, 1_000_000)
	f.Update(250_040, 20, 2_000_000)
	f.Update(250_080, 20, 3_000_000)

	for _, c := range []int64{0, 3_000_000, 9_999_999, 50_000_000} {
		back := f.ClientFromServer(f.ServerFromClient(c))
		assert.InDelta(t, float64(c), float64(back), 1)
	}
}

func TestFilterCovarianceStaysPositive(t *testing.T) {
	f := NewFilter()
	offsets := []float64{100, 130, 90, 115, 105, 98, 120, 111, 104, 99}
	ts := int64(0)
	for _, m := range offsets {
		f.Update(m, 15, ts)
		ts += 500_000
	}

	require.True(t, f.Synchronized())
	assert.GreaterOrEqual(t, f.pOO, 0.0)
	assert.GreaterOrEqual(t, f.pDD, 0.0)
	// Determinant of the covariance must not go negative beyond
	// floating point noise.
	det := f.pOO*f.pDD - f.pOD*f.pOD
	assert.GreaterOrEqual(t, det, -1e-6)
}

func TestFilterAdaptiveForgetting(t *testing.T) {
	f := NewFilter()
	ts := int64(0)
	for i := 0; i < 120; i++ {
		f.Update(1000, 10, ts)
		ts += 200_000
	}
	assert.Equal(t, 100, f.SampleCount())
	settled := f.ErrorMicros()

	// A clock step far beyond the residual cutoff inflates the
	// covariance so the filter can chase the new offset.
	f.Update(50_000, 10, ts)
	assert.Greater(t, f.ErrorMicros(), settled)
}

func TestFilterReset(t *testing.T) {
	f := NewFilter()
	f.Update(100, 10, 0)
	f.Update(120, 10, 1_000_000)
	require.True(t, f.Synchronized())

	f.Reset()
	assert.False(t, f.Synchronized())
	assert.Equal(t, 0, f.SampleCount())
	assert.Equal(t, int64(0), f.OffsetMicros())
}

func TestMeasurementFromExchange(t *testing.T) {
	// Client clock 1000 µs behind server, 400 µs symmetric RTT.
	// t1=0 (client), t2=1200 (server), t3=1300 (server), t4=500.
	offset, delay := MeasurementFromExchange(0, 1200, 1300, 500)
	assert.InDelta(t, 1000, offset, 1e-9)
	assert.InDelta(t, 200, delay, 1e-9)
}

func TestClockFunc(t *testing.T) {
	c := ClockFunc(func() int64 { return 42 })
	assert.Equal(t, int64(42), c.NowMicros())
	assert.Greater(t, SystemClock{}.NowMicros(), int64(0))
}
