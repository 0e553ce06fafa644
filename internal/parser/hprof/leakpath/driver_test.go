package leakpath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParser is an in-memory Parser backed by a small, hand-built object
// graph: enough to drive the two-phase search without a real heap dump.
type fakeParser struct {
	records    map[ObjectID]Record
	meta       map[ObjectID]ObjectIdMetadata
	shallow    map[ObjectID]int64
	classNames map[ObjectID]string
}

func newFakeParser() *fakeParser {
	return &fakeParser{
		records:    make(map[ObjectID]Record),
		meta:       make(map[ObjectID]ObjectIdMetadata),
		shallow:    make(map[ObjectID]int64),
		classNames: make(map[ObjectID]string),
	}
}

// addInstance registers an instance with a single-level class hierarchy
// and the given fields as object references.
func (p *fakeParser) addInstance(id ObjectID, className string, shallowSize int64, fields ...FieldValue) {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	p.records[id] = Record{Instance: &HydratedInstance{
		ClassHierarchy: []ClassInfo{{ClassName: className, FieldNames: names}},
		FieldValues:    [][]FieldValue{fields},
	}}
	p.meta[id] = MetaInstance
	p.shallow[id] = shallowSize
	p.classNames[id] = className
}

func (p *fakeParser) setMeta(id ObjectID, m ObjectIdMetadata) {
	p.meta[id] = m
}

func ref(name string, to ObjectID) FieldValue {
	return FieldValue{Name: name, IsObject: true, Referent: to}
}

func (p *fakeParser) RetrieveRecordByID(id ObjectID) (Record, error) {
	return p.records[id], nil
}

func (p *fakeParser) ObjectIDMetadata(id ObjectID) ObjectIdMetadata {
	if m, ok := p.meta[id]; ok {
		return m
	}
	return MetaInstance
}

func (p *fakeParser) ClassName(classID ObjectID) string {
	return p.classNames[classID]
}

func (p *fakeParser) IDSize() int { return 8 }

func (p *fakeParser) InstanceShallowSize(instanceID ObjectID) int64 {
	if s, ok := p.shallow[instanceID]; ok {
		return s
	}
	return 16
}

func noExclusions(context.Context, Parser) ([]ExclusionRule, error) {
	return nil, nil
}

func TestFindPaths_ShortestPathWins(t *testing.T) {
	p := newFakeParser()
	// root(1) -> a(2) -> leak(100)               (length 2)
	// root(1) -> b(3) -> c(4) -> leak(100)        (length 3)
	p.addInstance(1, "com.example.Root", 16, ref("toA", 2), ref("toB", 3))
	p.addInstance(2, "com.example.A", 16, ref("toLeak", 100))
	p.addInstance(3, "com.example.B", 16, ref("toC", 4))
	p.addInstance(4, "com.example.C", 16, ref("toLeak", 100))
	p.addInstance(100, "com.example.Leaked", 32)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: noExclusions,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 100, Key: "k1", ClassName: "java.lang.ref.WeakReference"}},
		GCRootIDs:         []ObjectID{1},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	node := results[0].LeakingNode
	require.NotNil(t, node)
	assert.Equal(t, ObjectID(100), node.Instance)
	assert.Nil(t, results[0].ExclusionStatus)

	// The shortest path (through `a`) must win: root -> a -> leak.
	require.NotNil(t, node.Parent)
	assert.Equal(t, ObjectID(2), node.Parent.Instance)
	require.NotNil(t, node.Parent.Parent)
	assert.True(t, node.Parent.Parent.IsRoot())
	assert.Equal(t, ObjectID(1), node.Parent.Parent.Instance)
}

func TestFindPaths_ExclusionSeverityBeatsShorterPath(t *testing.T) {
	p := newFakeParser()
	// root(1) --[weakly reachable]--> leak(100)   (length 1, demoted)
	// root(1) -> mid(2) -> leak(100)               (length 2, always reachable)
	p.addInstance(1, "com.example.Root", 16, ref("toLeakDirect", 100), ref("toMid", 2))
	p.addInstance(2, "com.example.Mid", 16, ref("toLeak", 100))
	p.addInstance(100, "com.example.Leaked", 32)

	exclusions := func(context.Context, Parser) ([]ExclusionRule, error) {
		return []ExclusionRule{
			{
				Kind:      InstanceFieldExclusion,
				ClassName: "com.example.Root",
				FieldName: "toLeakDirect",
				Exclusion: Exclusion{Status: WeaklyReachable, Description: "demoted direct edge"},
			},
		}, nil
	}

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: exclusions,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 100, Key: "k1"}},
		GCRootIDs:         []ObjectID{1},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	node := results[0].LeakingNode
	// The path through mid is entirely always-reachable, so no status is reported.
	assert.Nil(t, results[0].ExclusionStatus)
	require.NotNil(t, node.Parent)
	assert.Equal(t, ObjectID(2), node.Parent.Instance)
}

func TestFindPaths_EqualPriorityTiesBreakByVisitOrder(t *testing.T) {
	p := newFakeParser()
	// root(1) -> a(2) -> leak(100)
	// root(1) -> b(3) -> leak(100)
	// "toA" sorts before "toB", so `a` is discovered first.
	p.addInstance(1, "com.example.Root", 16, ref("toA", 2), ref("toB", 3))
	p.addInstance(2, "com.example.A", 16, ref("toLeak", 100))
	p.addInstance(3, "com.example.B", 16, ref("toLeak", 100))
	p.addInstance(100, "com.example.Leaked", 32)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: noExclusions,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 100, Key: "k1"}},
		GCRootIDs:         []ObjectID{1},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	node := results[0].LeakingNode
	require.NotNil(t, node.Parent)
	assert.Equal(t, ObjectID(2), node.Parent.Instance, "the first-discovered equal-priority path must win")
}

func TestFindPaths_SkipFilterPrunesNonLeakingSkippableNode(t *testing.T) {
	p := newFakeParser()
	// root(1) -> str(2) -> leak(100); str is tagged MetaString and is not
	// itself a leaking candidate, so it is dropped at enqueue time and
	// leak(100) is never reached through it.
	p.addInstance(1, "com.example.Root", 16, ref("toStr", 2))
	p.addInstance(2, "java.lang.String", 16, ref("toLeak", 100))
	p.setMeta(2, MetaString)
	p.addInstance(100, "com.example.Leaked", 32)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: noExclusions,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 100, Key: "k1"}},
		GCRootIDs:         []ObjectID{1},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindPaths_RetainedHeapSizeSumsDominatedSubtree(t *testing.T) {
	p := newFakeParser()
	// root(1) -> leak(100, size 32) -> child(200, size 24) -> grandchild(300, size 8)
	p.addInstance(1, "com.example.Root", 16, ref("toLeak", 100))
	p.addInstance(100, "com.example.Leaked", 32, ref("toChild", 200))
	p.addInstance(200, "com.example.Child", 24, ref("toGrandchild", 300))
	p.addInstance(300, "com.example.Grandchild", 8)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:                  p,
		ExclusionsFactory:       noExclusions,
		LeakingWeakRefs:         []WeakRefMirror{{Referent: 100, Key: "k1"}},
		GCRootIDs:               []ObjectID{1},
		ComputeRetainedHeapSize: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].RetainedHeapSize)
	assert.Equal(t, int64(32+24+8), *results[0].RetainedHeapSize)
}

func TestFindPaths_RetainedSizeExcludesNodesSharedWithAnotherSubtree(t *testing.T) {
	p := newFakeParser()
	// Two leaking candidates, 100 and 101, both reach shared(200): shared
	// has no single nearest leaking ancestor and must not be counted in
	// either candidate's retained size.
	p.addInstance(1, "com.example.Root", 16, ref("toA", 100), ref("toB", 101))
	p.addInstance(100, "com.example.LeakedA", 32, ref("toShared", 200))
	p.addInstance(101, "com.example.LeakedB", 40, ref("toShared", 200))
	p.addInstance(200, "com.example.Shared", 64)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:                  p,
		ExclusionsFactory:       noExclusions,
		LeakingWeakRefs:         []WeakRefMirror{{Referent: 100, Key: "a"}, {Referent: 101, Key: "b"}},
		GCRootIDs:               []ObjectID{1},
		ComputeRetainedHeapSize: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		switch r.WeakReference.Referent {
		case 100:
			assert.Equal(t, int64(32), *r.RetainedHeapSize)
		case 101:
			assert.Equal(t, int64(40), *r.RetainedHeapSize)
		default:
			t.Fatalf("unexpected referent %d", r.WeakReference.Referent)
		}
	}
}

func TestFindPaths_MultipleLeakingCandidatesAllReported(t *testing.T) {
	p := newFakeParser()
	p.addInstance(1, "com.example.Root", 16, ref("toA", 100), ref("toB", 101))
	p.addInstance(100, "com.example.LeakedA", 32)
	p.addInstance(101, "com.example.LeakedB", 32)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: noExclusions,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 100, Key: "a"}, {Referent: 101, Key: "b"}},
		GCRootIDs:         []ObjectID{1},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindPaths_NoLeakingCandidatesFoundReturnsEmptyResults(t *testing.T) {
	p := newFakeParser()
	p.addInstance(1, "com.example.Root", 16, ref("toA", 2))
	p.addInstance(2, "com.example.A", 16)

	analyzer := NewAnalyzer(nil)
	results, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: noExclusions,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 999, Key: "missing"}},
		GCRootIDs:         []ObjectID{1},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindPaths_ExclusionsFactoryErrorPropagates(t *testing.T) {
	p := newFakeParser()
	p.addInstance(1, "com.example.Root", 16)

	failing := func(context.Context, Parser) ([]ExclusionRule, error) {
		return nil, assert.AnError
	}

	analyzer := NewAnalyzer(nil)
	_, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:            p,
		ExclusionsFactory: failing,
		LeakingWeakRefs:   []WeakRefMirror{{Referent: 100, Key: "k1"}},
		GCRootIDs:         []ObjectID{1},
	})
	assert.Error(t, err)
}

type recordingListener struct {
	steps []Step
}

func (l *recordingListener) OnProgressUpdate(step Step) {
	l.steps = append(l.steps, step)
}

func TestFindPaths_ProgressListenerReceivesEachPhase(t *testing.T) {
	p := newFakeParser()
	p.addInstance(1, "com.example.Root", 16, ref("toLeak", 100))
	p.addInstance(100, "com.example.Leaked", 32)

	listener := &recordingListener{}
	analyzer := NewAnalyzer(nil)
	_, err := analyzer.FindPaths(context.Background(), FindPathsInput{
		Parser:                  p,
		ExclusionsFactory:       noExclusions,
		LeakingWeakRefs:         []WeakRefMirror{{Referent: 100, Key: "k1"}},
		GCRootIDs:               []ObjectID{1},
		ComputeRetainedHeapSize: true,
		ProgressListener:        listener,
	})
	require.NoError(t, err)
	assert.Contains(t, listener.steps, FindingShortestPaths)
	assert.Contains(t, listener.steps, CalculatingRetainedSize)
}
