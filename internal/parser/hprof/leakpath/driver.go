package leakpath

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/perf-analysis/pkg/errors"
	"github.com/perf-analysis/pkg/utils"
)

// tracer is the package-wide OpenTelemetry tracer, obtained the same way
// as elsewhere in this service (see pkg/telemetry doc comment):
// otel.Tracer(name). With tracing disabled this is a no-op tracer.
var tracer = otel.Tracer("github.com/perf-analysis/internal/parser/hprof/leakpath")

// Analyzer is the path finder (driver): it orchestrates the two-phase
// search over a heap snapshot. It is reusable across calls to FindPaths
// but not safe for concurrent use.
type Analyzer struct {
	logger utils.Logger
}

// NewAnalyzer constructs an Analyzer. A nil logger suppresses log output.
func NewAnalyzer(logger utils.Logger) *Analyzer {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Analyzer{logger: logger}
}

// FindPathsInput bundles FindPaths's parameters.
type FindPathsInput struct {
	Parser                  Parser
	ExclusionsFactory       ExclusionsFactory
	LeakingWeakRefs         []WeakRefMirror
	GCRootIDs               []ObjectID
	ComputeRetainedHeapSize bool
	ProgressListener        ProgressListener
	// FrontierSoftLimit, when positive, triggers a one-time warning log
	// once the BFS frontier grows past it. It never drops entries or
	// caps the search; it exists purely to surface pathologically wide
	// graphs while they're still running.
	FrontierSoftLimit int
}

// FindPaths runs a two-phase breadth-first search from the GC roots to
// find the shortest retaining path to each leaking candidate, minimizing
// exclusion severity first, then path length, then visit order. When
// ComputeRetainedHeapSize is set it then streams an approximate
// dominator tree to estimate each candidate's retained heap size.
func (a *Analyzer) FindPaths(ctx context.Context, in FindPathsInput) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "leakpath.FindPaths")
	defer span.End()

	listener := in.ProgressListener
	if listener == nil {
		listener = NoopProgressListener{}
	}
	a.signal(listener, FindingShortestPaths)

	rules, err := in.ExclusionsFactory(ctx, in.Parser)
	if err != nil {
		return nil, errors.Wrap(errors.CodeLeakPathError, "building exclusion index", err)
	}
	index := NewExclusionIndex(rules)

	referentMap := make(map[ObjectID]WeakRefMirror, len(in.LeakingWeakRefs))
	for _, w := range in.LeakingWeakRefs {
		referentMap[w.Referent] = w
	}
	isLeaking := func(id ObjectID) bool {
		_, ok := referentMap[id]
		return ok
	}

	frontier := NewFrontier()
	dominator := NewDominatorTracker(isLeaking)

	for _, rootID := range in.GCRootIDs {
		dominator.Undominate(rootID)
		frontier.Enqueue(RootNode(rootID, frontier.nextVisitOrder()), nil, in.Parser.ObjectIDMetadata(rootID), isLeaking(rootID))
	}

	vc := &visitContext{
		parser:         in.Parser,
		index:          index,
		frontier:       frontier,
		dominator:      dominator,
		isLeaking:      isLeaking,
		retained:       in.ComputeRetainedHeapSize,
		nextVisitOrder: frontier.nextVisitOrder,
	}

	var results []Result
	lowestPriority := AlwaysReachable
	inDominatorPhase := false
	warnedFrontierSize := false

	for frontier.Len() > 0 {
		if in.FrontierSoftLimit > 0 && !warnedFrontierSize && frontier.Len() > in.FrontierSoftLimit {
			a.logger.Warn("leakpath: frontier size %d exceeded soft limit %d", frontier.Len(), in.FrontierSoftLimit)
			warnedFrontierSize = true
		}

		node, priority, ok := frontier.Pop()
		if !ok {
			break
		}
		if priority > lowestPriority {
			lowestPriority = priority
		}

		if frontier.IsVisited(node.Instance) {
			continue
		}
		frontier.MarkVisited(node.Instance)

		if w, ok := referentMap[node.Instance]; ok {
			var status *ExclusionStatus
			if priority != AlwaysReachable {
				p := priority
				status = &p
			}
			results = append(results, Result{
				LeakingNode:     node,
				ExclusionStatus: status,
				WeakReference:   w,
			})
		}

		if len(results) == len(in.LeakingWeakRefs) {
			if in.ComputeRetainedHeapSize && lowestPriority < WeaklyReachable {
				if !inDominatorPhase {
					inDominatorPhase = true
					a.signal(listener, FindingDominators)
				}
			} else {
				break
			}
		}

		record, err := in.Parser.RetrieveRecordByID(node.Instance)
		if err != nil {
			// Missing record: the visitor dispatch is a closed match on
			// three kinds; anything else (including a lookup failure)
			// is a leaf of the search.
			continue
		}
		if err := vc.visit(node, record); err != nil {
			return nil, err
		}
	}

	if in.ComputeRetainedHeapSize {
		if err := a.computeRetainedSizes(listener, in.Parser, dominator, results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// computeRetainedSizes sums the shallow size of every instance dominated
// by each leaking candidate, then adds the candidate's own shallow size.
func (a *Analyzer) computeRetainedSizes(listener ProgressListener, parser Parser, dominator *DominatorTracker, results []Result) error {
	a.signal(listener, CalculatingRetainedSize)

	retainedSizes := make(map[ObjectID]int64)

	for instanceID, dominatorID := range dominator.Dominated() {
		size, err := shallowSize(parser, instanceID)
		if err != nil {
			return errors.Wrap(errors.CodeLeakPathError, "computing shallow size during retained-size accounting", err)
		}
		retainedSizes[dominatorID] += size
	}

	for i := range results {
		leakingID := results[i].LeakingNode.Instance
		size, err := shallowSize(parser, leakingID)
		if err != nil {
			return errors.Wrap(errors.CodeLeakPathError, "computing shallow size for leaking instance", err)
		}
		retainedSizes[leakingID] += size
		total := retainedSizes[leakingID]
		results[i].RetainedHeapSize = &total
	}

	return nil
}

// shallowSize computes a record's own shallow size in bytes. A record
// kind outside the expected set here is a hard error: it indicates
// parser/analyzer disagreement.
func shallowSize(parser Parser, id ObjectID) (int64, error) {
	record, err := parser.RetrieveRecordByID(id)
	if err != nil {
		return 0, err
	}
	switch {
	case record.Instance != nil:
		return parser.InstanceShallowSize(id), nil
	case record.ObjectArray != nil:
		return int64(len(record.ObjectArray.ElementIDs)) * int64(parser.IDSize()), nil
	case record.PrimitiveArray != nil:
		return int64(record.PrimitiveArray.Length) * PrimitiveSize(record.PrimitiveArray.Kind), nil
	default:
		return 0, errors.New(errors.CodeLeakPathError, "unexpected record kind during retained-size accounting")
	}
}

func (a *Analyzer) signal(listener ProgressListener, step Step) {
	a.logger.Info("leakpath: %s", step)
	listener.OnProgressUpdate(step)
}
