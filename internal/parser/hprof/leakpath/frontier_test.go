package leakpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontier_PopOrdersByPriorityThenVisitOrder(t *testing.T) {
	f := NewFrontier()

	weak := WeaklyReachable
	never := NeverReachable
	always := AlwaysReachable

	f.Enqueue(RootNode(10, f.nextVisitOrder()), &weak, MetaInstance, false)
	f.Enqueue(RootNode(20, f.nextVisitOrder()), &always, MetaInstance, false)
	f.Enqueue(RootNode(30, f.nextVisitOrder()), nil, MetaInstance, false)
	f.Enqueue(RootNode(40, f.nextVisitOrder()), &never, MetaInstance, false)

	node, priority, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, ObjectID(20), node.Instance)
	assert.Equal(t, AlwaysReachable, priority)

	node, priority, ok = f.Pop()
	require.True(t, ok)
	assert.Equal(t, ObjectID(30), node.Instance)
	assert.Equal(t, AlwaysReachable, priority)

	node, priority, ok = f.Pop()
	require.True(t, ok)
	assert.Equal(t, ObjectID(10), node.Instance)
	assert.Equal(t, WeaklyReachable, priority)

	// The NeverReachable entry was dropped at enqueue time.
	_, _, ok = f.Pop()
	assert.False(t, ok)
}

func TestFrontier_NeverReachableIsNeverEnqueued(t *testing.T) {
	f := NewFrontier()
	never := NeverReachable
	f.Enqueue(RootNode(1, f.nextVisitOrder()), &never, MetaInstance, false)
	assert.Equal(t, 0, f.Len())
}

func TestFrontier_VisitedIDIsNeverReEnqueued(t *testing.T) {
	f := NewFrontier()
	f.Enqueue(RootNode(1, f.nextVisitOrder()), nil, MetaInstance, false)
	node, _, ok := f.Pop()
	require.True(t, ok)
	f.MarkVisited(node.Instance)

	f.Enqueue(RootNode(1, f.nextVisitOrder()), nil, MetaInstance, false)
	assert.Equal(t, 0, f.Len())
	assert.True(t, f.IsVisited(1))
}

func TestFrontier_BetterPriorityReplacesExistingEntry(t *testing.T) {
	f := NewFrontier()
	weak := WeaklyReachable
	always := AlwaysReachable

	f.Enqueue(RootNode(1, f.nextVisitOrder()), &weak, MetaInstance, false)
	f.Enqueue(RootNode(1, f.nextVisitOrder()), &always, MetaInstance, false)

	assert.Equal(t, 1, f.Len())
	node, priority, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, ObjectID(1), node.Instance)
	assert.Equal(t, AlwaysReachable, priority)
}

func TestFrontier_WorsePriorityDoesNotReplaceExistingEntry(t *testing.T) {
	f := NewFrontier()
	weak := WeaklyReachable
	never := NeverReachable

	f.Enqueue(RootNode(1, f.nextVisitOrder()), &weak, MetaInstance, false)
	f.Enqueue(RootNode(1, f.nextVisitOrder()), &never, MetaInstance, false)

	assert.Equal(t, 1, f.Len())
	_, priority, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, WeaklyReachable, priority)
}

func TestFrontier_SkipFilterDropsSkippableNonLeakingNodes(t *testing.T) {
	f := NewFrontier()
	f.Enqueue(RootNode(1, f.nextVisitOrder()), nil, MetaString, false)
	assert.Equal(t, 0, f.Len())
}

func TestFrontier_SkipFilterKeepsSkippableLeakingNodes(t *testing.T) {
	f := NewFrontier()
	f.Enqueue(RootNode(1, f.nextVisitOrder()), nil, MetaString, true)
	assert.Equal(t, 1, f.Len())
}

func TestFrontier_NullIDIsNeverEnqueued(t *testing.T) {
	f := NewFrontier()
	f.Enqueue(RootNode(0, f.nextVisitOrder()), nil, MetaInstance, false)
	assert.Equal(t, 0, f.Len())
}
