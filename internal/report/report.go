// Package report writes run results as timestamped, human-readable lines.
package report

import (
	"io"
	"log"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/polly-merge/internal/merger"
	"github.com/nhle/polly-merge/internal/theme"
)

// Reporter logs one line per result. Lines look like
//
//	2026/10/14 09:00:00.123456 Merged https://host/projects/P/repos/r/pull-requests/1
//	2026/10/14 09:00:00.234567 Failed to merge https://host/... : reason
type Reporter struct {
	logger   *log.Logger
	renderer *lipgloss.Renderer
}

// New returns a Reporter writing to w. Colors are used only when w is a
// terminal.
func New(w io.Writer) *Reporter {
	return &Reporter{
		logger:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		renderer: lipgloss.NewRenderer(w),
	}
}

// Result writes the line for one result.
func (r *Reporter) Result(res merger.Result) {
	label := theme.OutcomeStyle(r.renderer, string(res.Outcome)).Render(Label(res.Outcome))
	line := label + " " + res.PullRequest.URL
	if res.Reason != "" {
		line += " : " + theme.SubtleStyle(r.renderer).Render(res.Reason)
	}
	r.logger.Print(line)
}

// Results writes every result in order.
func (r *Reporter) Results(results []merger.Result) {
	for _, res := range results {
		r.Result(res)
	}
}

// Label is the leading verb of a result line.
func Label(o merger.Outcome) string {
	switch o {
	case merger.OutcomeMerged:
		return "Merged"
	case merger.OutcomeWouldMerge:
		return "Would merge"
	case merger.OutcomeDeferred:
		return "Deferred"
	case merger.OutcomeSkipped:
		return "Skipped"
	case merger.OutcomeFailed:
		return "Failed to merge"
	default:
		return string(o)
	}
}

// Summary counts results by outcome.
type Summary struct {
	Merged   int
	Deferred int
	Skipped  int
	Failed   int
}

// Summarize tallies results. WouldMerge counts as merged.
func Summarize(results []merger.Result) Summary {
	var s Summary
	for _, res := range results {
		switch res.Outcome {
		case merger.OutcomeMerged, merger.OutcomeWouldMerge:
			s.Merged++
		case merger.OutcomeDeferred:
			s.Deferred++
		case merger.OutcomeSkipped:
			s.Skipped++
		case merger.OutcomeFailed:
			s.Failed++
		}
	}
	return s
}
