package leakpath

// fieldKey identifies a (className, fieldName) pair for exact-match
// lookup.
type fieldKey struct {
	className string
	fieldName string
}

// ExclusionIndex is the class×field and class×static-field lookup for
// the exclusion policy, built once per Analyzer.FindPaths call.
type ExclusionIndex struct {
	byThread       map[string]Exclusion
	byStaticField  map[fieldKey]Exclusion
	byInstanceField map[fieldKey]Exclusion
}

// NewExclusionIndex builds an index from the rules produced by an
// ExclusionsFactory.
func NewExclusionIndex(rules []ExclusionRule) *ExclusionIndex {
	idx := &ExclusionIndex{
		byThread:        make(map[string]Exclusion),
		byStaticField:   make(map[fieldKey]Exclusion),
		byInstanceField: make(map[fieldKey]Exclusion),
	}
	for _, r := range rules {
		switch r.Kind {
		case ThreadExclusion:
			idx.byThread[r.ThreadName] = r.Exclusion
		case StaticFieldExclusion:
			idx.byStaticField[fieldKey{r.ClassName, r.FieldName}] = r.Exclusion
		case InstanceFieldExclusion:
			idx.byInstanceField[fieldKey{r.ClassName, r.FieldName}] = r.Exclusion
		}
	}
	return idx
}

// StaticField looks up an exclusion for a class's static field. A
// missing entry degrades to "no exclusion applies".
func (idx *ExclusionIndex) StaticField(className, fieldName string) (Exclusion, bool) {
	e, ok := idx.byStaticField[fieldKey{className, fieldName}]
	return e, ok
}

// InstanceField looks up an exclusion for a class's instance field.
func (idx *ExclusionIndex) InstanceField(className, fieldName string) (Exclusion, bool) {
	e, ok := idx.byInstanceField[fieldKey{className, fieldName}]
	return e, ok
}

// Thread looks up a thread-name exclusion. Retained for callers that
// want to penalize paths through a named thread's stack locals, though
// the current driver does not traverse thread roots as a distinct kind.
func (idx *ExclusionIndex) Thread(threadName string) (Exclusion, bool) {
	e, ok := idx.byThread[threadName]
	return e, ok
}

// mergedInstanceFieldExclusions builds, for a hydrated instance's class
// hierarchy, a flat fieldName -> Exclusion map by overlaying each
// class's instance-field exclusions in hierarchy order. Later classes
// in the hierarchy slice override earlier ones
// on key collision; in practice keys rarely collide since exclusions
// are class-specific.
func (idx *ExclusionIndex) mergedInstanceFieldExclusions(hierarchy []ClassInfo) map[string]Exclusion {
	merged := make(map[string]Exclusion)
	for _, ci := range hierarchy {
		for _, fieldName := range ci.FieldNames {
			if e, ok := idx.InstanceField(ci.ClassName, fieldName); ok {
				merged[fieldName] = e
			}
		}
	}
	return merged
}
