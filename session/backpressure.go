package session

import "time"

// dropRetention is how long dropped-frame timestamps stay in the
// sliding window.
const dropRetention = 5 * time.Minute

// DropStats is a snapshot of the session's backpressure ledger.
type DropStats struct {
	// TotalDrops counts every frame discarded since the session opened.
	TotalDrops uint64
	// LastDropBytes is the payload size of the most recent drop.
	LastDropBytes int
	// LastDropUS is the local microsecond timestamp of the most recent
	// drop, or 0 when nothing was ever dropped.
	LastDropUS int64
	// RecentDrops counts drops inside the retention window.
	RecentDrops int
}

// dropLedger tracks frames discarded under backpressure. Callers hold
// the session lock.
type dropLedger struct {
	total     uint64
	lastBytes int
	lastUS    int64
	window    []int64
}

func (l *dropLedger) record(bytes int, nowUS int64) {
	l.total++
	l.lastBytes = bytes
	l.lastUS = nowUS
	l.window = append(l.window, nowUS)
}

// stats prunes the window and returns a snapshot.
func (l *dropLedger) stats(nowUS int64) DropStats {
	cutoff := nowUS - dropRetention.Microseconds()
	keep := 0
	for _, ts := range l.window {
		if ts >= cutoff {
			l.window[keep] = ts
			keep++
		}
	}
	l.window = l.window[:keep]
	return DropStats{
		TotalDrops:    l.total,
		LastDropBytes: l.lastBytes,
		LastDropUS:    l.lastUS,
		RecentDrops:   keep,
	}
}
