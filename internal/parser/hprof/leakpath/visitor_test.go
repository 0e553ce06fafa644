package leakpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVisitContext(p Parser, rules []ExclusionRule, retained bool) *visitContext {
	frontier := NewFrontier()
	return &visitContext{
		parser:         p,
		index:          NewExclusionIndex(rules),
		frontier:       frontier,
		dominator:      NewDominatorTracker(func(ObjectID) bool { return false }),
		isLeaking:      func(ObjectID) bool { return false },
		nextVisitOrder: frontier.nextVisitOrder,
		retained:       retained,
	}
}

func TestVisit_ClassRecordSkipsStaticOverheadAndNullFields(t *testing.T) {
	p := newFakeParser()
	vc := newTestVisitContext(p, nil, false)

	rec := Record{Class: &ClassRecord{
		ClassName: "com.example.Holder",
		StaticFields: []FieldValue{
			{Name: staticOverheadField, IsObject: true, Referent: 1},
			{Name: "nullRef", IsObject: true, Referent: 0},
			{Name: "nonObject", IsObject: false},
			{Name: "INSTANCE", IsObject: true, Referent: 42},
		},
	}}

	err := vc.visit(RootNode(10, 0), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, vc.frontier.Len())

	node, _, ok := vc.frontier.Pop()
	require.True(t, ok)
	assert.Equal(t, ObjectID(42), node.Instance)
	assert.Equal(t, StaticField, node.Reference.Kind)
	assert.Equal(t, "INSTANCE", node.Reference.Name)
}

func TestVisit_ClassRecordAppliesStaticFieldExclusion(t *testing.T) {
	p := newFakeParser()
	vc := newTestVisitContext(p, []ExclusionRule{
		{
			Kind:      StaticFieldExclusion,
			ClassName: "com.example.Holder",
			FieldName: "INSTANCE",
			Exclusion: Exclusion{Status: NeverReachable, Description: "singleton slot"},
		},
	}, false)

	rec := Record{Class: &ClassRecord{
		ClassName:    "com.example.Holder",
		StaticFields: []FieldValue{{Name: "INSTANCE", IsObject: true, Referent: 42}},
	}}

	err := vc.visit(RootNode(10, 0), rec)
	require.NoError(t, err)
	// NeverReachable is dropped at enqueue time.
	assert.Equal(t, 0, vc.frontier.Len())
}

func TestVisit_InstanceFieldsAreSortedByNameAscending(t *testing.T) {
	p := newFakeParser()
	vc := newTestVisitContext(p, nil, false)

	rec := Record{Instance: &HydratedInstance{
		ClassHierarchy: []ClassInfo{{ClassName: "com.example.Thing", FieldNames: []string{"zebra", "alpha", "mango"}}},
		FieldValues: [][]FieldValue{{
			{Name: "zebra", IsObject: true, Referent: 1},
			{Name: "alpha", IsObject: true, Referent: 2},
			{Name: "mango", IsObject: true, Referent: 3},
		}},
	}}

	err := vc.visit(RootNode(10, 0), rec)
	require.NoError(t, err)
	require.Equal(t, 3, vc.frontier.Len())

	var order []string
	for vc.frontier.Len() > 0 {
		node, _, _ := vc.frontier.Pop()
		order = append(order, node.Reference.Name)
	}
	// All three have equal priority, so Pop order follows enqueue
	// (visit) order, which follows the ascending field-name sort.
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, order)
}

func TestVisit_ObjectArraySkipsNullSlots(t *testing.T) {
	p := newFakeParser()
	vc := newTestVisitContext(p, nil, false)

	rec := Record{ObjectArray: &ObjectArrayRecord{ElementIDs: []ObjectID{10, 0, 20}}}
	err := vc.visit(RootNode(1, 0), rec)
	require.NoError(t, err)
	assert.Equal(t, 2, vc.frontier.Len())
}

func TestVisit_UnrecognizedRecordIsALeaf(t *testing.T) {
	p := newFakeParser()
	vc := newTestVisitContext(p, nil, false)

	err := vc.visit(RootNode(1, 0), Record{})
	require.NoError(t, err)
	assert.Equal(t, 0, vc.frontier.Len())
}

func TestVisit_DominatorInvariantViolationSurfacesAsFatal(t *testing.T) {
	p := newFakeParser()
	vc := newTestVisitContext(p, nil, true)
	// Node 1 was never seeded via Undominate/UpdateDominator: visiting it
	// in retained mode should surface the dominator tracker's invariant
	// violation through vc.fatal.
	rec := Record{Instance: &HydratedInstance{
		ClassHierarchy: []ClassInfo{{ClassName: "com.example.Thing", FieldNames: []string{"next"}}},
		FieldValues:    [][]FieldValue{{{Name: "next", IsObject: true, Referent: 99}}},
	}}

	err := vc.visit(RootNode(1, 0), rec)
	assert.Error(t, err)
}
