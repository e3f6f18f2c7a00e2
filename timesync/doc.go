// Package timesync estimates the offset and drift between a client
// clock and its server's clock from round-trip time samples.
//
// The estimator is a two-state Kalman filter over (offset, drift) fed
// by one measurement per client/time → server/time exchange. Once two
// samples have been absorbed the filter projects timestamps in both
// directions with microsecond resolution:
//
//	f := timesync.NewFilter()
//	f.Update(offset, delay, nowUS)
//	playAt := f.ClientFromServer(frame.TimestampUS)
//
// All timestamps are microseconds. The Clock interface injects the
// local microsecond source so tests can pin time.
package timesync
