package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/polly-merge/internal/merger"
	"github.com/nhle/polly-merge/internal/source"
)

func result(id string, outcome merger.Outcome, reason string) merger.Result {
	return merger.Result{
		PullRequest: source.PullRequest{URL: "https://host/pull-requests/" + id},
		Outcome:     outcome,
		Reason:      reason,
	}
}

func TestReporterResults(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Results([]merger.Result{
		result("1", merger.OutcomeMerged, ""),
		result("2", merger.OutcomeFailed, "merge conflicts"),
		result("3", merger.OutcomeDeferred, "https://host/pull-requests/9 not merged yet (OPEN)"),
		result("4", merger.OutcomeSkipped, "conflicting commands"),
		result("5", merger.OutcomeWouldMerge, ""),
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)

	expected := []string{
		"Merged https://host/pull-requests/1",
		"Failed to merge https://host/pull-requests/2 : merge conflicts",
		"Deferred https://host/pull-requests/3 : https://host/pull-requests/9 not merged yet (OPEN)",
		"Skipped https://host/pull-requests/4 : conflicting commands",
		"Would merge https://host/pull-requests/5",
	}
	for i, line := range lines {
		// "2006/01/02 15:04:05.000000 " prefix.
		require.Greater(t, len(line), 27)
		assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}\.\d{6} `, line)
		assert.Equal(t, expected[i], line[27:])
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]merger.Result{
		result("1", merger.OutcomeMerged, ""),
		result("2", merger.OutcomeWouldMerge, ""),
		result("3", merger.OutcomeFailed, "x"),
		result("4", merger.OutcomeDeferred, "x"),
		result("5", merger.OutcomeDeferred, "x"),
		result("6", merger.OutcomeSkipped, "x"),
	})

	assert.Equal(t, Summary{Merged: 2, Deferred: 2, Skipped: 1, Failed: 1}, s)
}
