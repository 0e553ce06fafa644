package leakpath

import "container/heap"

// frontierEntry is one element of the priority heap. index is the entry's
// heap position, which lets Enqueue remove an entry superseded by a better
// priority with heap.Remove.
type frontierEntry struct {
	node     *LeakNode
	priority ExclusionStatus
	index    int // maintained by container/heap
}

// frontierHeap is a min-heap ordered by (priority, node.VisitOrder).
type frontierHeap []*frontierEntry

func (h frontierHeap) Len() int { return len(h) }

func (h frontierHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].node.VisitOrder < h[j].node.VisitOrder
}

func (h frontierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *frontierHeap) Push(x any) {
	e := x.(*frontierEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Frontier is the priority-ordered, deduplicated BFS frontier keyed by
// object id. It is not safe for concurrent use.
type Frontier struct {
	heap       frontierHeap
	byID       map[ObjectID]*frontierEntry // invariant: byID <-> heap entries
	visited    map[ObjectID]struct{}
	nextVisit  int
}

// NewFrontier constructs an empty Frontier.
func NewFrontier() *Frontier {
	f := &Frontier{
		byID:    make(map[ObjectID]*frontierEntry),
		visited: make(map[ObjectID]struct{}),
	}
	heap.Init(&f.heap)
	return f
}

// nextVisitOrder returns a strictly increasing integer assigned at
// enqueue time, used to tie-break within equal priority.
func (f *Frontier) nextVisitOrder() int {
	v := f.nextVisit
	f.nextVisit++
	return v
}

// MarkVisited records id as popped and permanently ineligible for
// re-enqueue: a visited id is never present in the frontier again.
func (f *Frontier) MarkVisited(id ObjectID) {
	f.visited[id] = struct{}{}
}

// IsVisited reports whether id has already been popped.
func (f *Frontier) IsVisited(id ObjectID) bool {
	_, ok := f.visited[id]
	return ok
}

// Len reports the number of ids currently in the frontier.
func (f *Frontier) Len() int { return f.heap.Len() }

// Enqueue inserts or updates node's priority in the frontier, applying
// the drop rules in order: already-visited, never-reachable priority,
// an existing entry with an equal-or-better priority, then the
// skip filter for non-leaking nodes whose metadata marks them
// skippable. meta and isLeaking determine whether the skip filter
// drops the node.
// priority == nil means "no exclusion applies" (AlwaysReachable).
func (f *Frontier) Enqueue(node *LeakNode, priority *ExclusionStatus, meta ObjectIdMetadata, isLeaking bool) {
	if node.Instance == 0 {
		return
	}
	if f.IsVisited(node.Instance) {
		return
	}
	p := AlwaysReachable
	if priority != nil {
		p = *priority
	}
	if p == NeverReachable {
		return
	}
	if existing, ok := f.byID[node.Instance]; ok {
		if existing.priority <= p {
			return
		}
	}
	if !isLeaking && meta.skippable() {
		return
	}
	if existing, ok := f.byID[node.Instance]; ok {
		// Stale entry with a worse priority: remove before re-inserting.
		heap.Remove(&f.heap, existing.index)
		delete(f.byID, node.Instance)
	}
	entry := &frontierEntry{node: node, priority: p}
	heap.Push(&f.heap, entry)
	f.byID[node.Instance] = entry
}

// Pop returns the node with the smallest priority, ties broken by
// smallest VisitOrder, and its priority. ok is false when the frontier
// is empty.
func (f *Frontier) Pop() (node *LeakNode, priority ExclusionStatus, ok bool) {
	if f.heap.Len() == 0 {
		return nil, AlwaysReachable, false
	}
	entry := heap.Pop(&f.heap).(*frontierEntry)
	delete(f.byID, entry.node.Instance)
	return entry.node, entry.priority, true
}
