// Package formatter provides result formatting for the retained-path analyzer.
package formatter

import (
	"fmt"
	"strings"

	"github.com/perf-analysis/internal/parser/hprof/leakpath"
	"github.com/perf-analysis/pkg/utils"
)

// LeakPathFormatter formats leakpath.Analyzer.FindPaths results.
type LeakPathFormatter struct{}

// Format outputs one retaining-path report per leaking candidate to the logger.
func (f *LeakPathFormatter) Format(results []leakpath.Result, log utils.Logger) {
	log.Info("=== Retained-Path Analysis Results ===")
	log.Info("Leaking candidates: %d", len(results))
	log.Info("")

	for i, r := range results {
		status := "ALWAYS_REACHABLE"
		if r.ExclusionStatus != nil {
			status = r.ExclusionStatus.String()
		}
		log.Info("%d. %s (reachability: %s)", i+1, r.WeakReference.ClassName, status)
		if r.RetainedHeapSize != nil {
			log.Info("   retained size: %s (%d bytes)", formatBytes(*r.RetainedHeapSize), *r.RetainedHeapSize)
		}
		log.Info("   path: %s", formatPath(r.LeakingNode))
	}
}

// FormatSummary returns a lightweight summary map for serialization.
func (f *LeakPathFormatter) FormatSummary(results []leakpath.Result) map[string]interface{} {
	candidates := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		status := "ALWAYS_REACHABLE"
		if r.ExclusionStatus != nil {
			status = r.ExclusionStatus.String()
		}
		candidate := map[string]interface{}{
			"class_name": r.WeakReference.ClassName,
			"referent":   uint64(r.WeakReference.Referent),
			"status":     status,
			"path":       formatPath(r.LeakingNode),
		}
		if r.RetainedHeapSize != nil {
			candidate["retained_size"] = *r.RetainedHeapSize
		}
		candidates = append(candidates, candidate)
	}

	return map[string]interface{}{
		"candidate_count": len(results),
		"candidates":      candidates,
	}
}

// formatPath renders a LeakNode chain as a root-to-leaf arrow trail.
func formatPath(node *leakpath.LeakNode) string {
	var segments []string
	for n := node; n != nil; n = n.Parent {
		if n.IsRoot() {
			segments = append([]string{fmt.Sprintf("root(%d)", n.Instance)}, segments...)
			continue
		}
		segments = append([]string{fmt.Sprintf("%s(%d)", n.Reference.Name, n.Instance)}, segments...)
	}
	return strings.Join(segments, " -> ")
}

// formatBytes renders a byte count in the largest whole unit that keeps
// it above 1.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
