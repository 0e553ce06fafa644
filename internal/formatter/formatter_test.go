package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perf-analysis/internal/parser/hprof/leakpath"
	"github.com/perf-analysis/pkg/utils"
)

func TestLeakPathFormatter_FormatSummary(t *testing.T) {
	retained := int64(2048)
	status := leakpath.WeaklyReachable
	results := []leakpath.Result{
		{
			LeakingNode:      leakpath.RootNode(1, 0),
			ExclusionStatus:  &status,
			WeakReference:    leakpath.WeakRefMirror{Referent: 1, ClassName: "com.example.Leaked"},
			RetainedHeapSize: &retained,
		},
	}

	f := &LeakPathFormatter{}
	summary := f.FormatSummary(results)

	require.Equal(t, 1, summary["candidate_count"])
	candidates, ok := summary["candidates"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, candidates, 1)
	assert.Equal(t, "com.example.Leaked", candidates[0]["class_name"])
	assert.Equal(t, "WEAKLY_REACHABLE", candidates[0]["status"])
	assert.Equal(t, int64(2048), candidates[0]["retained_size"])
}

func TestLeakPathFormatter_FormatSummary_NoExclusionStatus(t *testing.T) {
	results := []leakpath.Result{
		{
			LeakingNode:   leakpath.RootNode(7, 0),
			WeakReference: leakpath.WeakRefMirror{Referent: 7, ClassName: "com.example.Other"},
		},
	}

	summary := (&LeakPathFormatter{}).FormatSummary(results)
	candidates := summary["candidates"].([]map[string]interface{})
	assert.Equal(t, "ALWAYS_REACHABLE", candidates[0]["status"])
	_, hasRetained := candidates[0]["retained_size"]
	assert.False(t, hasRetained)
}

func TestLeakPathFormatter_Format_DoesNotPanicOnEmptyResults(t *testing.T) {
	assert.NotPanics(t, func() {
		(&LeakPathFormatter{}).Format(nil, &utils.NullLogger{})
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.00 KiB", formatBytes(1024))
}
