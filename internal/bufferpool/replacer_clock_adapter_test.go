package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClockAdapter_EvictsLeastRecentlyTouched(t *testing.T) {
	r := newClockAdapter(3)

	for id := 0; id < 3; id++ {
		r.RecordAccess(id)
		r.SetEvictable(id, true)
	}
	require.Equal(t, 3, r.Size())

	// Give frame 1 a fresh reference so 0 and 2 go first.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, victim)

	r.RecordAccess(1)
	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, 2, victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, victim)

	_, ok = r.Evict()
	require.False(t, ok)
}

func TestClockAdapter_PinnedFramesAreNotVictims(t *testing.T) {
	r := newClockAdapter(2)

	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(0, false)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, victim)

	_, ok = r.Evict()
	require.False(t, ok)
}

func TestClockAdapter_RemoveForgetsFrame(t *testing.T) {
	r := newClockAdapter(2)

	r.RecordAccess(0)
	r.SetEvictable(0, true)
	r.Remove(0)

	require.Equal(t, 0, r.Size())
	_, ok := r.Evict()
	require.False(t, ok)
}
