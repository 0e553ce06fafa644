// Package leakpath computes retaining paths from GC roots to leaking
// candidates in a parsed heap snapshot, and optionally estimates each
// candidate's retained heap size.
//
// # Package Organization
//
//   - types.go: data model (ObjectID, ExclusionStatus, LeakNode, Result,
//     the Parser/ExclusionsFactory/ProgressListener collaborator contracts)
//   - frontier.go: priority-ordered, deduplicated BFS frontier
//   - exclusions.go: class/static-field/thread-name exclusion index
//   - dominator.go: streaming nearest-leaking-ancestor tracker
//   - visitor.go: record dispatch (class / instance / object-array)
//   - driver.go: Analyzer.FindPaths, the two-phase search orchestrator
//
// findPaths is single-threaded and non-reentrant: an Analyzer clears its
// internal state at the start and end of every call and is safe to reuse
// sequentially, but never concurrently.
//
//	an := leakpath.NewAnalyzer(nil)
//	results, err := an.FindPaths(ctx, leakpath.FindPathsInput{
//		Parser:                parser,
//		ExclusionsFactory:      exclusionsFactory,
//		LeakingWeakRefs:        weakRefs,
//		GCRootIDs:              roots,
//		ComputeRetainedHeapSize: true,
//	})
package leakpath
