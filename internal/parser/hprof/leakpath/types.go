package leakpath

import "context"

// ObjectID is a 64-bit heap object identifier. 0 denotes null and is
// never enqueued.
type ObjectID uint64

// ObjectIdMetadata tags an object id with the kind of record it names.
// The core consumes this tag but never computes it.
type ObjectIdMetadata int

const (
	MetaClass ObjectIdMetadata = iota
	MetaInstance
	MetaObjectArray
	MetaPrimitiveArrayOrWrapperArray
	MetaPrimitiveWrapper
	MetaString
	MetaEmptyInstance
)

// skippable reports whether metadata belongs to the "skip filter" unless
// the id is a known leaking candidate.
func (m ObjectIdMetadata) skippable() bool {
	switch m {
	case MetaPrimitiveWrapper, MetaPrimitiveArrayOrWrapperArray, MetaString, MetaEmptyInstance:
		return true
	default:
		return false
	}
}

// ExclusionStatus orders reachability severity. Lower numeric value is
// higher priority: ALWAYS_REACHABLE < WEAKLY_REACHABLE < NEVER_REACHABLE.
type ExclusionStatus int

const (
	// AlwaysReachable is also used internally as the sentinel priority
	// for "no exclusion applies to this edge".
	AlwaysReachable ExclusionStatus = iota
	WeaklyReachable
	NeverReachable
)

func (s ExclusionStatus) String() string {
	switch s {
	case AlwaysReachable:
		return "ALWAYS_REACHABLE"
	case WeaklyReachable:
		return "WEAKLY_REACHABLE"
	case NeverReachable:
		return "NEVER_REACHABLE"
	default:
		return "UNKNOWN"
	}
}

// Exclusion demotes a reference edge to a lower reachability tier.
type Exclusion struct {
	Status      ExclusionStatus
	Description string
}

// LeakReferenceKind describes how a child was reached from its parent.
type LeakReferenceKind int

const (
	StaticField LeakReferenceKind = iota
	InstanceField
	ArrayEntry
)

// LeakReference describes the edge from a parent LeakNode to a child.
type LeakReference struct {
	Kind         LeakReferenceKind
	Name         string
	DisplayValue string
}

// LeakNode is an immutable, parent-linked tree node rooted at a GC root.
// Root nodes have Parent == nil.
type LeakNode struct {
	Instance            ObjectID
	VisitOrder           int
	ExclusionDescription string // empty if no exclusion applies
	Parent               *LeakNode
	Reference            LeakReference // zero value for root nodes
}

// IsRoot reports whether this node has no parent.
func (n *LeakNode) IsRoot() bool { return n.Parent == nil }

// RootNode constructs a root LeakNode for the given GC root instance.
func RootNode(instance ObjectID, visitOrder int) *LeakNode {
	return &LeakNode{Instance: instance, VisitOrder: visitOrder}
}

// ChildNode constructs a child LeakNode.
func ChildNode(instance ObjectID, visitOrder int, exclusionDescription string, parent *LeakNode, ref LeakReference) *LeakNode {
	return &LeakNode{
		Instance:             instance,
		VisitOrder:           visitOrder,
		ExclusionDescription: exclusionDescription,
		Parent:               parent,
		Reference:            ref,
	}
}

// WeakRefMirror is the subset of a weak-reference tracking record the
// core needs: the referent id being watched for a leak.
type WeakRefMirror struct {
	Referent  ObjectID
	Key       string
	ClassName string
}

// Result is the outcome of locating one leaking candidate.
type Result struct {
	LeakingNode      *LeakNode
	ExclusionStatus  *ExclusionStatus // nil iff the path is all ALWAYS_REACHABLE
	WeakReference    WeakRefMirror
	RetainedHeapSize *int64 // nil unless retained-size mode is on
}

// Step is a progress-notification marker.
type Step int

const (
	FindingShortestPaths Step = iota
	FindingDominators
	CalculatingRetainedSize
)

func (s Step) String() string {
	switch s {
	case FindingShortestPaths:
		return "FINDING_SHORTEST_PATHS"
	case FindingDominators:
		return "FINDING_DOMINATORS"
	case CalculatingRetainedSize:
		return "CALCULATING_RETAINED_SIZE"
	default:
		return "UNKNOWN"
	}
}

// ProgressListener receives fire-and-forget progress notifications. It
// must never call back into the Analyzer.
type ProgressListener interface {
	OnProgressUpdate(step Step)
}

// NoopProgressListener discards all notifications.
type NoopProgressListener struct{}

func (NoopProgressListener) OnProgressUpdate(Step) {}

// PrimitiveKind enumerates the eight HPROF primitive kinds, used to size
// primitive-array records during retained-size accounting.
type PrimitiveKind int

const (
	PrimBoolean PrimitiveKind = iota
	PrimByte
	PrimShort
	PrimChar
	PrimInt
	PrimFloat
	PrimLong
	PrimDouble
)

// PrimitiveSize returns the fixed byte width of a primitive kind.
func PrimitiveSize(k PrimitiveKind) int64 {
	switch k {
	case PrimBoolean, PrimByte:
		return 1
	case PrimShort, PrimChar:
		return 2
	case PrimInt, PrimFloat:
		return 4
	case PrimLong, PrimDouble:
		return 8
	default:
		return 0
	}
}

// FieldValue is one field slot of a hydrated instance or a static field
// of a class record: a name and, if the field holds an object reference,
// the referent id.
type FieldValue struct {
	Name      string
	IsObject  bool
	Referent  ObjectID
	Display   string
}

// ClassInfo is one level of a hydrated instance's class hierarchy.
type ClassInfo struct {
	ClassName  string
	FieldNames []string
}

// ClassRecord is a CLASS_DUMP record: the class's own static fields.
type ClassRecord struct {
	ClassName    string
	StaticFields []FieldValue
}

// HydratedInstance pairs a class hierarchy with its parallel field
// values, per the parser contract: FieldValues[i][j] corresponds to
// ClassHierarchy[i].FieldNames[j].
type HydratedInstance struct {
	ClassHierarchy []ClassInfo
	FieldValues    [][]FieldValue
}

// ObjectArrayRecord is an OBJECT_ARRAY_DUMP record.
type ObjectArrayRecord struct {
	ElementIDs []ObjectID
}

// PrimitiveArrayRecord is a PRIMITIVE_ARRAY_DUMP record: no outbound
// references, contributes only to retained size.
type PrimitiveArrayRecord struct {
	Kind   PrimitiveKind
	Length int
}

// Record is the sum type returned by Parser.RetrieveRecordByID. Exactly
// one of the typed fields is non-nil for a recognized kind; an
// unrecognized kind leaves all fields nil and is treated as a leaf of
// the search.
type Record struct {
	Class           *ClassRecord
	Instance        *HydratedInstance
	ObjectArray     *ObjectArrayRecord
	PrimitiveArray  *PrimitiveArrayRecord
}

// Parser is the external collaborator the core consumes: a read-only
// view over a parsed heap snapshot. Implementations must be
// side-effect-free and idempotent.
type Parser interface {
	// RetrieveRecordByID returns the record for an object id.
	RetrieveRecordByID(id ObjectID) (Record, error)
	// ObjectIDMetadata returns the constant-time tag for an object id.
	ObjectIDMetadata(id ObjectID) ObjectIdMetadata
	// ClassName resolves a class id (or class-valued object id) to its
	// fully-qualified name.
	ClassName(classID ObjectID) string
	// IDSize is 4 or 8, the dump's reference width.
	IDSize() int
	// InstanceShallowSize returns the cumulative (over the class
	// hierarchy) shallow size for an instance record's class.
	InstanceShallowSize(instanceID ObjectID) int64
}

// ExclusionsFactory evaluates once per Analyzer.FindPaths call, yielding
// the exclusion rules that apply to this search.
type ExclusionsFactory func(ctx context.Context, p Parser) ([]ExclusionRule, error)

// ExclusionRuleKind distinguishes the three exclusion shapes.
type ExclusionRuleKind int

const (
	ThreadExclusion ExclusionRuleKind = iota
	StaticFieldExclusion
	InstanceFieldExclusion
)

// ExclusionRule is one entry produced by an ExclusionsFactory.
type ExclusionRule struct {
	Kind       ExclusionRuleKind
	ThreadName string // ThreadExclusion
	ClassName  string // Static/InstanceFieldExclusion
	FieldName  string // Static/InstanceFieldExclusion
	Exclusion  Exclusion
}
