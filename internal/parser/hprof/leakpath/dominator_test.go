package leakpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leakSetIsLeaking(ids ...ObjectID) func(ObjectID) bool {
	set := make(map[ObjectID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id ObjectID) bool {
		_, ok := set[id]
		return ok
	}
}

func TestDominatorTracker_SinglePathPropagatesDominator(t *testing.T) {
	d := NewDominatorTracker(leakSetIsLeaking(100))
	d.Undominate(1) // root

	require.NoError(t, d.UpdateDominator(1, 100)) // leaking; the tracker marks it undominated
	require.NoError(t, d.UpdateDominator(100, 200))
	require.NoError(t, d.UpdateDominator(200, 300))

	dom, ok := d.DominatorOf(200)
	require.True(t, ok)
	assert.Equal(t, ObjectID(100), dom)

	dom, ok = d.DominatorOf(300)
	require.True(t, ok)
	assert.Equal(t, ObjectID(100), dom)
}

func TestDominatorTracker_DivergentPathsWithoutSharedAncestorUndominate(t *testing.T) {
	d := NewDominatorTracker(leakSetIsLeaking(100, 101))
	d.Undominate(1)

	require.NoError(t, d.UpdateDominator(1, 100))
	require.NoError(t, d.UpdateDominator(1, 101))
	require.NoError(t, d.UpdateDominator(100, 200))
	require.NoError(t, d.UpdateDominator(101, 200))

	// 200 is reachable from two distinct leaking candidates with no
	// shared leaking ancestor: it becomes undominated.
	assert.True(t, d.IsUndominated(200))
	_, ok := d.DominatorOf(200)
	assert.False(t, ok)
}

func TestDominatorTracker_UndominatedStaysUndominated(t *testing.T) {
	d := NewDominatorTracker(leakSetIsLeaking(100))
	d.Undominate(1)
	d.Undominate(50) // e.g. a second GC root reaches this node directly

	require.NoError(t, d.UpdateDominator(1, 100))
	require.NoError(t, d.UpdateDominator(100, 50))

	assert.True(t, d.IsUndominated(50))
	_, ok := d.DominatorOf(50)
	assert.False(t, ok)
}

func TestDominatorTracker_SameDominatorSeenTwiceIsNoop(t *testing.T) {
	d := NewDominatorTracker(leakSetIsLeaking(100))
	d.Undominate(1)

	require.NoError(t, d.UpdateDominator(1, 100))
	require.NoError(t, d.UpdateDominator(100, 200))
	require.NoError(t, d.UpdateDominator(100, 200))

	dom, ok := d.DominatorOf(200)
	require.True(t, ok)
	assert.Equal(t, ObjectID(100), dom)
}

func TestDominatorTracker_ParentWithNoStatusIsInvariantViolation(t *testing.T) {
	d := NewDominatorTracker(leakSetIsLeaking(100))
	// 1 was never visited via Undominate or UpdateDominator: it has
	// neither a dominator entry nor undominated status.
	err := d.UpdateDominator(1, 200)
	assert.Error(t, err)
}

func TestDominatorTracker_Dominated_ReturnsFullMap(t *testing.T) {
	d := NewDominatorTracker(leakSetIsLeaking(100))
	d.Undominate(1)
	require.NoError(t, d.UpdateDominator(1, 100))
	require.NoError(t, d.UpdateDominator(100, 200))

	dominated := d.Dominated()
	assert.Equal(t, ObjectID(100), dominated[200])
}
