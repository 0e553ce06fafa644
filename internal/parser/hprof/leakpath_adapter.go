// Package hprof provides parsing functionality for Java HPROF heap dump files.
package hprof

import (
	"fmt"
	"strings"

	"github.com/perf-analysis/internal/parser/hprof/leakpath"
)

// primitiveArrayKinds maps an HPROF primitive array class name to its
// element kind, the same convention biggest_objects.go uses to filter
// primitive arrays from the top-level view.
var primitiveArrayKinds = map[string]leakpath.PrimitiveKind{
	"boolean[]": leakpath.PrimBoolean,
	"byte[]":    leakpath.PrimByte,
	"short[]":   leakpath.PrimShort,
	"char[]":    leakpath.PrimChar,
	"int[]":     leakpath.PrimInt,
	"float[]":   leakpath.PrimFloat,
	"long[]":    leakpath.PrimLong,
	"double[]":  leakpath.PrimDouble,
}

// boxedWrapperClasses are the classes ObjectIDMetadata tags as
// MetaPrimitiveWrapper, matched against the "basic wrapper types" this
// package already special-cases in biggest_objects.go.
var boxedWrapperClasses = map[string]bool{
	"java.lang.Boolean":   true,
	"java.lang.Byte":      true,
	"java.lang.Short":     true,
	"java.lang.Character": true,
	"java.lang.Integer":   true,
	"java.lang.Float":     true,
	"java.lang.Long":      true,
	"java.lang.Double":    true,
}

// LeakPathAdapter implements leakpath.Parser over a parsed ReferenceGraph,
// the same graph BiggestObjectsBuilder and the dominator analyzers read
// from. It is read-only and safe to share across concurrent FindPaths
// calls as long as the underlying graph is not being mutated.
type LeakPathAdapter struct {
	graph        *ReferenceGraph
	classLayouts map[uint64]*ClassFieldLayout
	idSize       int
}

// NewLeakPathAdapter constructs an adapter. idSize is the dump's
// reference width (4 or 8), taken from the parsed Header.
func NewLeakPathAdapter(graph *ReferenceGraph, classLayouts map[uint64]*ClassFieldLayout, idSize int) *LeakPathAdapter {
	return &LeakPathAdapter{graph: graph, classLayouts: classLayouts, idSize: idSize}
}

// defaultWeakReferenceClasses are the JDK reference classes whose
// "referent" field is checked when no explicit class list is given.
var defaultWeakReferenceClasses = []string{
	"java.lang.ref.WeakReference",
	"java.lang.ref.SoftReference",
	"java.lang.ref.PhantomReference",
}

// FindWeakReferents scans every instance of the given reference classes
// (defaultWeakReferenceClasses if classNames is empty) and returns a
// WeakRefMirror for each non-null "referent" field found, suitable for
// FindPathsInput.LeakingWeakRefs.
func (a *LeakPathAdapter) FindWeakReferents(classNames []string) []leakpath.WeakRefMirror {
	if len(classNames) == 0 {
		classNames = defaultWeakReferenceClasses
	}

	var mirrors []leakpath.WeakRefMirror
	for _, cn := range classNames {
		classID, ok := a.graph.getClassIDByName(cn)
		if !ok {
			continue
		}
		for _, oid := range a.graph.getObjectsByClass(classID) {
			for _, ref := range a.graph.GetOutgoingRefs(oid) {
				if ref.FieldName != "referent" || ref.ToObjectID == 0 {
					continue
				}
				mirrors = append(mirrors, leakpath.WeakRefMirror{
					Referent:  leakpath.ObjectID(ref.ToObjectID),
					Key:       fmt.Sprintf("%d", oid),
					ClassName: cn,
				})
			}
		}
	}
	return mirrors
}

// GCRoots returns every GC root as a leakpath.ObjectID, suitable for
// FindPathsInput.GCRootIDs.
func (a *LeakPathAdapter) GCRoots() []leakpath.ObjectID {
	raw := a.graph.GCRootObjectIDs()
	ids := make([]leakpath.ObjectID, len(raw))
	for i, id := range raw {
		ids[i] = leakpath.ObjectID(id)
	}
	return ids
}

// RetrieveRecordByID implements leakpath.Parser.
func (a *LeakPathAdapter) RetrieveRecordByID(id leakpath.ObjectID) (leakpath.Record, error) {
	oid := uint64(id)

	if a.graph.classObjectIDs[oid] {
		return leakpath.Record{Class: a.buildClassRecord(oid)}, nil
	}

	classID, ok := a.graph.GetObjectClassID(oid)
	if !ok {
		return leakpath.Record{}, fmt.Errorf("leakpath adapter: object %d has no recorded class", oid)
	}
	className := a.graph.GetClassName(classID)

	if kind, ok := primitiveArrayKinds[className]; ok {
		return leakpath.Record{PrimitiveArray: a.buildPrimitiveArrayRecord(oid, kind)}, nil
	}
	if strings.HasSuffix(className, "[]") {
		return leakpath.Record{ObjectArray: a.buildObjectArrayRecord(oid)}, nil
	}
	return leakpath.Record{Instance: a.buildInstanceRecord(oid, classID, className)}, nil
}

func (a *LeakPathAdapter) buildClassRecord(classID uint64) *leakpath.ClassRecord {
	className := a.graph.GetClassName(classID)
	var fields []leakpath.FieldValue
	if layout := a.classLayouts[classID]; layout != nil {
		for _, sf := range layout.StaticFields {
			fields = append(fields, leakpath.FieldValue{
				Name:     sf.Name,
				IsObject: sf.Type == TypeObject,
				Referent: leakpath.ObjectID(sf.RefID),
				Display:  fmt.Sprintf("%v", sf.Value),
			})
		}
	}
	return &leakpath.ClassRecord{ClassName: className, StaticFields: fields}
}

func (a *LeakPathAdapter) buildInstanceRecord(oid, classID uint64, className string) *leakpath.HydratedInstance {
	refs := a.graph.GetOutgoingRefs(oid)
	fields := make([]leakpath.FieldValue, 0, len(refs))
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.FieldName == "" {
			continue
		}
		fields = append(fields, leakpath.FieldValue{
			Name:     ref.FieldName,
			IsObject: true,
			Referent: leakpath.ObjectID(ref.ToObjectID),
		})
		names = append(names, ref.FieldName)
	}
	return &leakpath.HydratedInstance{
		ClassHierarchy: []leakpath.ClassInfo{{ClassName: className, FieldNames: names}},
		FieldValues:    [][]leakpath.FieldValue{fields},
	}
}

func (a *LeakPathAdapter) buildObjectArrayRecord(oid uint64) *leakpath.ObjectArrayRecord {
	refs := a.graph.GetOutgoingRefs(oid)
	ids := make([]leakpath.ObjectID, len(refs))
	for i, ref := range refs {
		ids[i] = leakpath.ObjectID(ref.ToObjectID)
	}
	return &leakpath.ObjectArrayRecord{ElementIDs: ids}
}

func (a *LeakPathAdapter) buildPrimitiveArrayRecord(oid uint64, kind leakpath.PrimitiveKind) *leakpath.PrimitiveArrayRecord {
	width := leakpath.PrimitiveSize(kind)
	length := 0
	if width > 0 {
		length = int(a.graph.GetObjectSize(oid) / width)
	}
	return &leakpath.PrimitiveArrayRecord{Kind: kind, Length: length}
}

// ObjectIDMetadata implements leakpath.Parser.
func (a *LeakPathAdapter) ObjectIDMetadata(id leakpath.ObjectID) leakpath.ObjectIdMetadata {
	oid := uint64(id)

	if a.graph.classObjectIDs[oid] {
		return leakpath.MetaClass
	}

	classID, ok := a.graph.GetObjectClassID(oid)
	if !ok {
		return leakpath.MetaEmptyInstance
	}
	className := a.graph.GetClassName(classID)

	if _, ok := primitiveArrayKinds[className]; ok {
		return leakpath.MetaPrimitiveArrayOrWrapperArray
	}
	if strings.HasSuffix(className, "[]") {
		return leakpath.MetaObjectArray
	}
	if className == "java.lang.String" {
		return leakpath.MetaString
	}
	if boxedWrapperClasses[className] {
		return leakpath.MetaPrimitiveWrapper
	}
	if len(a.graph.GetOutgoingRefs(oid)) == 0 && a.graph.GetObjectSize(oid) <= int64(a.idSize) {
		return leakpath.MetaEmptyInstance
	}
	return leakpath.MetaInstance
}

// ClassName implements leakpath.Parser.
func (a *LeakPathAdapter) ClassName(classID leakpath.ObjectID) string {
	return a.graph.GetClassName(uint64(classID))
}

// IDSize implements leakpath.Parser.
func (a *LeakPathAdapter) IDSize() int {
	return a.idSize
}

// InstanceShallowSize implements leakpath.Parser.
func (a *LeakPathAdapter) InstanceShallowSize(instanceID leakpath.ObjectID) int64 {
	return a.graph.GetObjectSize(uint64(instanceID))
}
