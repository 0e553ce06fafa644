package leakpath

import (
	"sort"
	"strconv"
)

// staticOverheadField is VM-internal bookkeeping skipped on class
// records.
const staticOverheadField = "$staticOverhead"

// visitContext bundles the collaborators the visitor needs per node.
type visitContext struct {
	parser    Parser
	index     *ExclusionIndex
	frontier  *Frontier
	dominator *DominatorTracker
	isLeaking func(ObjectID) bool
	retained  bool
	nextVisitOrder func() int
	// fatal carries a dominator-tracker invariant violation out of the
	// visitor; checked by visit after dispatch.
	fatal error
}

// visit dispatches on the record kind and enqueues outbound edges.
// Unrecognized record kinds are leaves of the search: no outbound
// references are emitted.
func (vc *visitContext) visit(node *LeakNode, record Record) error {
	switch {
	case record.Class != nil:
		vc.visitClass(node, record.Class)
	case record.Instance != nil:
		vc.visitInstance(node, record.Instance)
	case record.ObjectArray != nil:
		vc.visitObjectArray(node, record.ObjectArray)
	}
	return vc.fatal
}

func (vc *visitContext) visitClass(node *LeakNode, rec *ClassRecord) {
	for _, field := range rec.StaticFields {
		if field.Name == staticOverheadField {
			continue
		}
		if !field.IsObject || field.Referent == 0 {
			continue
		}
		if vc.retained {
			vc.dominateEdgeIsClassRef(field.Referent)
		}
		var excl *Exclusion
		if e, ok := vc.index.StaticField(rec.ClassName, field.Name); ok {
			excl = &e
		}
		vc.enqueueChild(node, field.Referent, LeakReference{
			Kind: StaticField, Name: field.Name, DisplayValue: field.Display,
		}, excl)
	}
}

func (vc *visitContext) visitInstance(node *LeakNode, rec *HydratedInstance) {
	merged := vc.index.mergedInstanceFieldExclusions(rec.ClassHierarchy)

	var fields []FieldValue
	for i, ci := range rec.ClassHierarchy {
		if i >= len(rec.FieldValues) {
			continue
		}
		values := rec.FieldValues[i]
		for j, fv := range values {
			if j >= len(ci.FieldNames) {
				continue
			}
			fields = append(fields, fv)
		}
	}

	// Sort by field name ascending for deterministic traversal.
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})

	for _, fv := range fields {
		if !fv.IsObject || fv.Referent == 0 {
			continue
		}
		if vc.retained {
			childMeta := vc.parser.ObjectIDMetadata(fv.Referent)
			if childMeta == MetaClass {
				vc.dominateEdgeIsClassRef(fv.Referent)
			} else {
				vc.updateDominator(node.Instance, fv.Referent)
			}
		}
		var excl *Exclusion
		if e, ok := merged[fv.Name]; ok {
			excl = &e
		}
		vc.enqueueChild(node, fv.Referent, LeakReference{
			Kind: InstanceField, Name: fv.Name, DisplayValue: fv.Display,
		}, excl)
	}
}

func (vc *visitContext) visitObjectArray(node *LeakNode, rec *ObjectArrayRecord) {
	for i, elementID := range rec.ElementIDs {
		if elementID == 0 {
			continue
		}
		if vc.retained {
			elemMeta := vc.parser.ObjectIDMetadata(elementID)
			if elemMeta == MetaClass {
				vc.dominateEdgeIsClassRef(elementID)
			} else {
				vc.updateDominator(node.Instance, elementID)
			}
		}
		vc.enqueueChild(node, elementID, LeakReference{
			Kind: ArrayEntry, Name: strconv.Itoa(i),
		}, nil)
	}
}

// dominateEdgeIsClassRef marks id undominated unless it is itself a
// leaking candidate: class references and GC roots always undominate;
// leaking candidates are never added to undominatedSet by visitation.
func (vc *visitContext) dominateEdgeIsClassRef(id ObjectID) {
	if vc.isLeaking(id) {
		return
	}
	vc.dominator.Undominate(id)
}

// updateDominator calls DominatorTracker.UpdateDominator unless child is
// itself a leaking candidate, in which case it is left deliberately
// unseen so it acts as the dominator of its own subtree.
func (vc *visitContext) updateDominator(parent, child ObjectID) {
	if vc.isLeaking(child) {
		return
	}
	if err := vc.dominator.UpdateDominator(parent, child); err != nil {
		vc.fatal = err
	}
}

func (vc *visitContext) enqueueChild(parent *LeakNode, childID ObjectID, ref LeakReference, excl *Exclusion) {
	var priority *ExclusionStatus
	description := ""
	if excl != nil {
		s := excl.Status
		priority = &s
		description = excl.Description
	}
	child := ChildNode(childID, vc.nextVisitOrder(), description, parent, ref)
	meta := vc.parser.ObjectIDMetadata(childID)
	vc.frontier.Enqueue(child, priority, meta, vc.isLeaking(childID))
}
