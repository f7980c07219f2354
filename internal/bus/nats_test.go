// ABOUTME: Tests for NATS subject naming and event wire encoding
// ABOUTME: Connection-level behavior is covered by integration environments

package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectFor_CanonicalPair(t *testing.T) {
	assert.Equal(t, "dm.msg.1:2", SubjectFor(1, 2))
	assert.Equal(t, "dm.msg.1:2", SubjectFor(2, 1))
	assert.Equal(t, "dm.msg.7:31", SubjectFor(31, 7))
}

func TestEvent_WireRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	ev := Event{
		ID:          "evt-42",
		Sender:      1,
		Receiver:    2,
		Body:        "hi",
		ClientToken: "tok-abc",
		CreatedAt:   created,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	// Field names are the cross-service wire contract
	assert.Contains(t, string(data), `"client_token":"tok-abc"`)
	assert.Contains(t, string(data), `"created_at"`)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ev, got)
}
