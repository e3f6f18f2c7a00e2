package timesync

import (
	"math"
	"sync"
)

// Filter defaults. ProcessStd is the assumed random-walk disturbance of
// the offset in µs per √µs; ForgetFactor scales covariance inflation
// when a large residual shows the clocks have jumped.
const (
	DefaultProcessStd   = 0.01
	DefaultForgetFactor = 2.0
)

// measurements beyond this count switch the filter from its warm-up
// phase to adaptive forgetting on large residuals.
const matureCount = 100

// residuals larger than this fraction of the reported measurement error
// trigger covariance inflation once the filter is mature.
const forgetCutoff = 0.75

// Filter is a two-state Kalman estimator of the client→server clock
// offset and its drift rate. The state is (offset µs, drift µs/µs); the
// 2×2 covariance is tracked by its three distinct entries.
//
// Feed it one measurement per time exchange via Update, then project
// timestamps with ServerFromClient / ClientFromServer. Safe for
// concurrent use.
type Filter struct {
	mu sync.Mutex

	offset       float64
	drift        float64
	lastUpdateUS int64
	count        int

	pOO, pOD, pDD float64
	q             float64 // process noise, processStd²
	forget        float64 // inflation multiplier, forgetFactor²
}

// NewFilter creates a filter with default tuning.
func NewFilter() *Filter {
	return NewFilterWith(DefaultProcessStd, DefaultForgetFactor)
}

// NewFilterWith creates a filter with explicit process noise and
// forgetting tuning. Non-positive arguments fall back to the defaults.
func NewFilterWith(processStd, forgetFactor float64) *Filter {
	if processStd <= 0 {
		processStd = DefaultProcessStd
	}
	if forgetFactor <= 0 {
		forgetFactor = DefaultForgetFactor
	}
	return &Filter{
		q:      processStd * processStd,
		forget: forgetFactor * forgetFactor,
	}
}

// Update absorbs one offset measurement taken at local time tUS.
// measurement is the estimated client→server offset in µs, maxError the
// one-way delay bound used as its standard deviation. A repeated tUS is
// ignored so retransmitted responses cannot double-count.
func (f *Filter) Update(measurement, maxError float64, tUS int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count > 0 && tUS == f.lastUpdateUS {
		return
	}

	r := maxError * maxError

	switch f.count {
	case 0:
		f.offset = measurement
		f.drift = 0
		f.pOO = r
		f.count = 1
	case 1:
		dt := float64(tUS - f.lastUpdateUS)
		f.drift = (measurement - f.offset) / dt
		f.offset = measurement
		f.pDD = (f.pOO + r) / dt
		f.pOO = r
		f.count = 2
	default:
		f.step(measurement, maxError, r, float64(tUS-f.lastUpdateUS))
	}

	f.lastUpdateUS = tUS
}

// step runs one predict/correct cycle of the mature filter.
func (f *Filter) step(measurement, maxError, r, dt float64) {
	// Predict.
	predicted := f.offset + f.drift*dt
	pOO := f.pOO + 2*f.pOD*dt + f.pDD*dt*dt + f.q*dt
	pOD := f.pOD + f.pDD*dt
	pDD := f.pDD

	residual := measurement - predicted

	if f.count < matureCount {
		f.count++
	} else if residual > maxError*forgetCutoff {
		// The prediction has diverged from reality, likely a clock
		// step on either end. Inflate uncertainty to reacquire lock.
		pOO *= f.forget
		pOD *= f.forget
		pDD *= f.forget
	}

	// Gain and correct.
	u := 1 / (pOO + r)
	kO := pOO * u
	kD := pOD * u

	f.offset = predicted + kO*residual
	f.drift += kD * residual
	f.pOO = pOO - kO*pOO
	f.pOD = pOD - kD*pOO
	f.pDD = pDD - kD*pOD
}

// Reset returns the filter to its unsynchronized startup state.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset = 0
	f.drift = 0
	f.lastUpdateUS = 0
	f.count = 0
	f.pOO = 0
	f.pOD = 0
	f.pDD = 0
}

// Synchronized reports whether enough samples have been absorbed for
// projections to be meaningful.
func (f *Filter) Synchronized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count >= 2 && !math.IsInf(f.pOO, 0)
}

// ErrorMicros returns the one-sigma offset uncertainty in microseconds.
func (f *Filter) ErrorMicros() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(math.Round(math.Sqrt(f.pOO)))
}

// OffsetMicros returns the current offset estimate in microseconds.
func (f *Filter) OffsetMicros() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(math.Round(f.offset))
}

// Drift returns the current drift estimate (offset µs per client µs).
func (f *Filter) Drift() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drift
}

// SampleCount returns how many measurements have been absorbed, capped
// at the maturity threshold.
func (f *Filter) SampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// ServerFromClient projects a client timestamp onto the server clock.
func (f *Filter) ServerFromClient(clientUS int64) int64 {
	f.mu.Lock()
	offset, drift, last := f.offset, f.drift, f.lastUpdateUS
	f.mu.Unlock()
	return clientUS + int64(math.Round(offset+drift*float64(clientUS-last)))
}

// ClientFromServer projects a server timestamp onto the client clock.
func (f *Filter) ClientFromServer(serverUS int64) int64 {
	f.mu.Lock()
	offset, drift, last := f.offset, f.drift, f.lastUpdateUS
	f.mu.Unlock()
	return int64(math.Round((float64(serverUS) - offset + drift*float64(last)) / (1 + drift)))
}

// MeasurementFromExchange derives the (offset, delay) pair for Update
// from the four timestamps of one time exchange: the client transmit
// time t1, server receive time t2, server transmit time t3, and the
// local receive time t4.
func MeasurementFromExchange(t1, t2, t3, t4 int64) (offset, delay float64) {
	offset = (float64(t2-t1) + float64(t3-t4)) / 2
	delay = (float64(t4-t1) - float64(t3-t2)) / 2
	return offset, delay
}
