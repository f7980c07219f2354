// ABOUTME: Presence Estimator deriving online/offline from last-seen timestamps
// ABOUTME: Point-in-time approximation, not a live heartbeat protocol

package presence

import "time"

// DefaultThreshold is the freshness window for considering an account online.
const DefaultThreshold = 5 * time.Minute

// Estimator approximates presence from last-seen timestamps. The estimate is
// computed at query time: a peer can show online for up to Threshold after it
// disconnects, and offline while connected but idle. There is no heartbeat
// protocol; if one is added, last-seen writes must stay monotone.
type Estimator struct {
	Threshold time.Duration
}

// NewEstimator creates an estimator. A non-positive threshold falls back to
// DefaultThreshold.
func NewEstimator(threshold time.Duration) *Estimator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Estimator{Threshold: threshold}
}

// Online reports whether an account with the given last-seen timestamp
// counts as online at now. The comparison is strict: exactly Threshold old
// is offline. A zero last-seen (never seen) is always offline.
func (e *Estimator) Online(lastSeen, now time.Time) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) < e.Threshold
}

// Snapshot is a presence observation paired with the instant it was taken.
type Snapshot struct {
	Online     bool
	LastSeen   time.Time
	ObservedAt time.Time
}
