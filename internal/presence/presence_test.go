// ABOUTME: Tests for the presence Estimator
// ABOUTME: Covers the freshness boundary and zero last-seen handling

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_Online(t *testing.T) {
	e := NewEstimator(5 * time.Minute)
	now := time.Now()

	tests := []struct {
		name     string
		lastSeen time.Time
		want     bool
	}{
		{"one minute ago", now.Add(-1 * time.Minute), true},
		{"six minutes ago", now.Add(-6 * time.Minute), false},
		{"exactly at threshold", now.Add(-5 * time.Minute), false},
		{"just inside threshold", now.Add(-5*time.Minute + time.Nanosecond), true},
		{"never seen", time.Time{}, false},
		{"seen right now", now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Online(tt.lastSeen, now))
		})
	}
}

func TestNewEstimator_DefaultThreshold(t *testing.T) {
	e := NewEstimator(0)
	assert.Equal(t, DefaultThreshold, e.Threshold)

	e = NewEstimator(-time.Minute)
	assert.Equal(t, DefaultThreshold, e.Threshold)
}
