package leakpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewExclusionIndex_PartitionsByKind(t *testing.T) {
	idx := NewExclusionIndex([]ExclusionRule{
		{
			Kind:       ThreadExclusion,
			ThreadName: "Finalizer",
			Exclusion:  Exclusion{Status: WeaklyReachable, Description: "finalizer thread"},
		},
		{
			Kind:      StaticFieldExclusion,
			ClassName: "com.example.Cache",
			FieldName: "INSTANCE",
			Exclusion: Exclusion{Status: NeverReachable, Description: "static cache singleton"},
		},
		{
			Kind:      InstanceFieldExclusion,
			ClassName: "java.lang.ThreadLocal$ThreadLocalMap$Entry",
			FieldName: "value",
			Exclusion: Exclusion{Status: WeaklyReachable, Description: "thread-local entry value"},
		},
	})

	thread, ok := idx.Thread("Finalizer")
	assert.True(t, ok)
	assert.Equal(t, WeaklyReachable, thread.Status)

	_, ok = idx.Thread("main")
	assert.False(t, ok)

	static, ok := idx.StaticField("com.example.Cache", "INSTANCE")
	assert.True(t, ok)
	assert.Equal(t, NeverReachable, static.Status)

	_, ok = idx.StaticField("com.example.Cache", "other")
	assert.False(t, ok)

	instance, ok := idx.InstanceField("java.lang.ThreadLocal$ThreadLocalMap$Entry", "value")
	assert.True(t, ok)
	assert.Equal(t, WeaklyReachable, instance.Status)
}

func TestExclusionIndex_MissingEntryDegradesToNoExclusion(t *testing.T) {
	idx := NewExclusionIndex(nil)
	_, ok := idx.StaticField("com.example.Anything", "field")
	assert.False(t, ok)
	_, ok = idx.InstanceField("com.example.Anything", "field")
	assert.False(t, ok)
	_, ok = idx.Thread("anything")
	assert.False(t, ok)
}

func TestExclusionIndex_MergedInstanceFieldExclusions(t *testing.T) {
	idx := NewExclusionIndex([]ExclusionRule{
		{
			Kind:      InstanceFieldExclusion,
			ClassName: "com.example.Base",
			FieldName: "cache",
			Exclusion: Exclusion{Status: WeaklyReachable},
		},
		{
			Kind:      InstanceFieldExclusion,
			ClassName: "com.example.Derived",
			FieldName: "next",
			Exclusion: Exclusion{Status: NeverReachable},
		},
	})

	hierarchy := []ClassInfo{
		{ClassName: "com.example.Derived", FieldNames: []string{"next", "value"}},
		{ClassName: "com.example.Base", FieldNames: []string{"cache"}},
	}

	merged := idx.mergedInstanceFieldExclusions(hierarchy)
	assert.Len(t, merged, 2)
	assert.Equal(t, NeverReachable, merged["next"].Status)
	assert.Equal(t, WeaklyReachable, merged["cache"].Status)
	_, ok := merged["value"]
	assert.False(t, ok)
}
