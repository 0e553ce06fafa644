package leakpath

import "github.com/perf-analysis/pkg/errors"

// DominatorTracker maintains, during traversal, a partial mapping from
// each visited non-leaking id to the nearest ancestor that is a leaking
// candidate, if any. This is a streaming approximation of the dominator
// tree restricted to leaking roots. It is deliberately not an exact
// Lengauer-Tarjan tree (see dom_dominator.go), which computes over the
// whole graph rather than this restricted, monotonically-safe
// streaming form.
type DominatorTracker struct {
	dominatedInstances map[ObjectID]ObjectID
	undominatedSet     map[ObjectID]struct{}
	isLeaking          func(ObjectID) bool
}

// NewDominatorTracker constructs a tracker. isLeaking reports whether an
// id is one of the leaking candidates for this search.
func NewDominatorTracker(isLeaking func(ObjectID) bool) *DominatorTracker {
	return &DominatorTracker{
		dominatedInstances: make(map[ObjectID]ObjectID),
		undominatedSet:     make(map[ObjectID]struct{}),
		isLeaking:          isLeaking,
	}
}

// DominatorOf returns the nearest leaking ancestor of id, if recorded.
func (d *DominatorTracker) DominatorOf(id ObjectID) (ObjectID, bool) {
	dom, ok := d.dominatedInstances[id]
	return dom, ok
}

// IsUndominated reports whether id is known to lie outside every
// leaking subtree.
func (d *DominatorTracker) IsUndominated(id ObjectID) bool {
	_, ok := d.undominatedSet[id]
	return ok
}

// Dominated returns the full dominatedInstances map for the retained-size
// accounting phase.
func (d *DominatorTracker) Dominated() map[ObjectID]ObjectID {
	return d.dominatedInstances
}

// Undominate removes id from dominatedInstances and inserts it into
// undominatedSet.
func (d *DominatorTracker) Undominate(id ObjectID) {
	delete(d.dominatedInstances, id)
	d.undominatedSet[id] = struct{}{}
}

// UpdateDominator records that child was reached through parent during
// this visit, narrowing child's dominator to the nearest leaking
// ancestor shared by every path seen so far.
func (d *DominatorTracker) UpdateDominator(parent, child ObjectID) error {
	if d.IsUndominated(child) {
		return nil
	}

	currentDom, hasCurrentDom := d.dominatedInstances[child]
	parentDom, parentHasDom := d.dominatedInstances[parent]

	var nextDom ObjectID
	var hasNextDom bool
	if d.isLeaking(parent) {
		nextDom, hasNextDom = parent, true
	} else {
		nextDom, hasNextDom = parentDom, parentHasDom
	}

	if !hasNextDom {
		if !d.IsUndominated(parent) {
			return errors.Wrap(errors.CodeLeakPathError,
				"dominator tracker invariant violation: visited parent has neither a dominator nor undominated status", nil)
		}
		d.Undominate(child)
		return nil
	}

	if !hasCurrentDom {
		d.dominatedInstances[child] = nextDom
		return nil
	}

	if currentDom == nextDom {
		return nil
	}

	if shared, found := d.sharedAncestor(currentDom, nextDom); found {
		d.dominatedInstances[child] = shared
		return nil
	}
	d.Undominate(child)
	return nil
}

// sharedAncestor walks both dominator chains to their roots, looking for
// the first id common to both.
func (d *DominatorTracker) sharedAncestor(a, b ObjectID) (ObjectID, bool) {
	chainA := d.chain(a)
	seenA := make(map[ObjectID]struct{}, len(chainA))
	for _, id := range chainA {
		seenA[id] = struct{}{}
	}
	for _, id := range d.chain(b) {
		if _, ok := seenA[id]; ok {
			return id, true
		}
	}
	return 0, false
}

// chain returns [start, dominator(start), dominator(dominator(start)), ...]
// until an id with no recorded dominator is reached.
func (d *DominatorTracker) chain(start ObjectID) []ObjectID {
	chain := []ObjectID{start}
	current := start
	visited := map[ObjectID]struct{}{current: {}}
	for {
		next, ok := d.dominatedInstances[current]
		if !ok {
			return chain
		}
		if _, seen := visited[next]; seen {
			// Defensive: a cycle would indicate corrupted bookkeeping;
			// stop rather than loop forever.
			return chain
		}
		chain = append(chain, next)
		visited[next] = struct{}{}
		current = next
	}
}
