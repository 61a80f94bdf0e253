package event

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/rollout/pkg/resource"
)

func TestRingAssignsIDs(t *testing.T) {
	r := NewRing(10)
	now := time.Now()

	require.NoError(t, r.LogEvent(Event{Type: EventPublish, StartedAt: now, EndedAt: now}))
	require.NoError(t, r.LogEvent(Event{Type: EventSync, StartedAt: now, EndedAt: now}))

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventID(1), events[0].ID)
	assert.Equal(t, EventID(2), events[1].ID)
	assert.Equal(t, EventPublish, events[0].Type)
}

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.LogEvent(Event{
			Type:     EventSync,
			Revision: resource.Revision{Counter: uint64(i + 1)},
			Message:  fmt.Sprintf("sync %d", i+1),
		}))
	}
	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[0].Revision.Counter)
	assert.Equal(t, uint64(5), events[2].Revision.Counter)
	// IDs keep counting across eviction
	assert.Equal(t, EventID(5), events[2].ID)
}
