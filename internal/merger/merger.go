// Package merger runs one polling pass: list the user's open pull
// requests, find merge directives in each, resolve merge-after
// dependencies, and merge what qualifies.
package merger

import (
	"context"
	"fmt"

	"github.com/nhle/polly-merge/internal/command"
	"github.com/nhle/polly-merge/internal/source"
	"github.com/nhle/polly-merge/internal/source/bitbucket"
)

// Source is the server-side surface a run needs. bitbucket.Adapter
// implements it.
type Source interface {
	// ListOpenPullRequests returns the user's open pull requests.
	ListOpenPullRequests(ctx context.Context) ([]source.PullRequest, error)

	// CommentTexts returns the text of every comment on a pull request.
	CommentTexts(ctx context.Context, ref source.PRRef) ([]string, error)

	// PullRequestState returns the current state of any pull request.
	PullRequestState(ctx context.Context, ref source.PRRef) (source.State, error)

	// Merge merges pr.
	Merge(ctx context.Context, pr source.PullRequest) error
}

// Outcome is what happened to a pull request that carried a directive.
type Outcome string

const (
	OutcomeMerged     Outcome = "merged"
	OutcomeWouldMerge Outcome = "would_merge"
	OutcomeDeferred   Outcome = "deferred"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// Result reports the outcome for one pull request. Pull requests without
// any directive produce no Result.
type Result struct {
	PullRequest source.PullRequest
	Outcome     Outcome

	// Reason explains every outcome except OutcomeMerged/OutcomeWouldMerge.
	Reason string
}

// Succeeded reports whether the pull request was (or would have been)
// merged.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeMerged || r.Outcome == OutcomeWouldMerge
}

// Options configures a Runner.
type Options struct {
	// DryRun evaluates directives without issuing merge calls.
	DryRun bool

	// Logf receives diagnostic lines. Nil discards them.
	Logf func(format string, args ...interface{})
}

// Runner evaluates pull requests one at a time.
type Runner struct {
	src    Source
	parser *command.Parser
	dryRun bool
	logf   func(format string, args ...interface{})
}

// New creates a Runner reading from src and recognising parser's trigger.
func New(src Source, parser *command.Parser, opts Options) *Runner {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Runner{
		src:    src,
		parser: parser,
		dryRun: opts.DryRun,
		logf:   logf,
	}
}

// Run lists the open pull requests and processes each of them. A listing
// failure is fatal and is returned before any per-PR call is made.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	prs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return r.ProcessAll(ctx, prs), nil
}

// List returns the open pull requests to evaluate.
func (r *Runner) List(ctx context.Context) ([]source.PullRequest, error) {
	prs, err := r.src.ListOpenPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests: %w", err)
	}
	r.logf("found %d open pull request(s)", len(prs))
	return prs, nil
}

// ProcessAll processes prs sequentially. Failures stay with their pull
// request; the pass always reaches the end unless ctx is cancelled.
func (r *Runner) ProcessAll(
	ctx context.Context,
	prs []source.PullRequest,
) []Result {
	var results []Result
	for _, pr := range prs {
		if ctx.Err() != nil {
			break
		}
		if res, ok := r.Process(ctx, pr); ok {
			results = append(results, res)
		}
	}
	return results
}

// Process evaluates one pull request. ok is false when it carries no
// directive.
//
// The description is checked first; comments are fetched only when the
// description has no directive.
func (r *Runner) Process(
	ctx context.Context,
	pr source.PullRequest,
) (res Result, ok bool) {
	res = Result{PullRequest: pr}

	cmds := r.parser.Parse(pr.Description)
	if len(cmds) == 0 {
		texts, err := r.src.CommentTexts(ctx, pr.Ref)
		if err != nil {
			r.logf("%s: %v", pr.Ref, err)
			res.Outcome = OutcomeFailed
			res.Reason = fmt.Sprintf("fetching comments: %v", err)
			return res, true
		}
		cmds = r.parser.ParseAll(texts)
	}

	decision := command.Decide(cmds)
	switch decision.Action {
	case command.None:
		return res, false

	case command.Conflict:
		res.Outcome = OutcomeSkipped
		res.Reason = decision.Reason
		return res, true

	case command.DoMergeAfter:
		merged, reason := r.dependencyMerged(ctx, decision.Target)
		if !merged {
			res.Outcome = OutcomeDeferred
			res.Reason = reason
			return res, true
		}
	}

	return r.merge(ctx, pr), true
}

// dependencyMerged reports whether the pull request at target has merged.
// When it has not, reason says why.
func (r *Runner) dependencyMerged(
	ctx context.Context,
	target string,
) (merged bool, reason string) {
	ref, err := bitbucket.ParsePullRequestURL(target)
	if err != nil {
		return false, err.Error()
	}

	state, err := r.src.PullRequestState(ctx, ref)
	if err != nil {
		r.logf("resolving %s: %v", target, err)
		if bitbucket.IsNotFound(err) {
			return false, fmt.Sprintf("%s not found", target)
		}
		return false, fmt.Sprintf("resolving %s: %v", target, err)
	}

	if state != source.StateMerged {
		return false, fmt.Sprintf("%s not merged yet (%s)", target, state)
	}
	return true, ""
}

func (r *Runner) merge(ctx context.Context, pr source.PullRequest) Result {
	if r.dryRun {
		return Result{PullRequest: pr, Outcome: OutcomeWouldMerge}
	}

	if err := r.src.Merge(ctx, pr); err != nil {
		return Result{
			PullRequest: pr,
			Outcome:     OutcomeFailed,
			Reason:      err.Error(),
		}
	}
	return Result{PullRequest: pr, Outcome: OutcomeMerged}
}
