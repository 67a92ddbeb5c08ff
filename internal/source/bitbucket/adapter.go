package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/polly-merge/internal/source"
)

// ErrCannotMerge is returned by Merge when Bitbucket reports the pull
// request as not mergeable (conflicts, vetoes from merge checks).
var ErrCannotMerge = errors.New("pull request cannot be merged")

// Options configures an Adapter.
type Options struct {
	// Timeout bounds each HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration

	// PageSize is the limit sent to paginated endpoints. Zero means 25.
	PageSize int
}

// Adapter exposes the handful of Bitbucket Server operations a merge run
// needs, on top of Client.
type Adapter struct {
	client   *Client
	baseURL  string
	pageSize int
}

// NewAdapter creates a new Bitbucket adapter.
func NewAdapter(baseURL, token string, opts Options) *Adapter {
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 25
	}
	return &Adapter{
		client:   NewClient(baseURL, token, opts.Timeout),
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
	}
}

// ListOpenPullRequests returns every open pull request authored by the
// token's user, following pagination to the last page.
func (a *Adapter) ListOpenPullRequests(
	ctx context.Context,
) ([]source.PullRequest, error) {
	prs, err := a.client.GetAllPRPages(
		ctx,
		"/rest/api/1.0/dashboard/pull-requests?state=OPEN&role=AUTHOR",
		a.pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching open PRs: %w", err)
	}

	snapshots := make([]source.PullRequest, 0, len(prs))
	for _, pr := range prs {
		snapshots = append(snapshots, a.toSnapshot(pr))
	}
	return snapshots, nil
}

// CommentTexts returns the raw text of every comment on a pull request,
// including nested replies, in activity order with replies depth-first.
//
// The comments endpoint needs a file path, so general comments are read
// from the activities stream instead.
func (a *Adapter) CommentTexts(
	ctx context.Context,
	ref source.PRRef,
) ([]string, error) {
	activities, err := a.client.GetAllActivityPages(
		ctx, prPath(ref)+"/activities", a.pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching activities for %s: %w", ref, err)
	}

	var texts []string
	for _, act := range activities {
		if act.Action != "COMMENTED" || act.Comment == nil {
			continue
		}
		texts = appendCommentTexts(texts, *act.Comment)
	}
	return texts, nil
}

func appendCommentTexts(texts []string, c ActivityComment) []string {
	texts = append(texts, c.Text)
	for _, reply := range c.Comments {
		texts = appendCommentTexts(texts, reply)
	}
	return texts
}

// PullRequestState looks up the current state of a pull request.
func (a *Adapter) PullRequestState(
	ctx context.Context,
	ref source.PRRef,
) (source.State, error) {
	var pr PullRequest
	if err := a.client.Get(ctx, prPath(ref), &pr); err != nil {
		return "", fmt.Errorf("fetching PR %s: %w", ref, err)
	}
	return source.State(strings.ToUpper(pr.State)), nil
}

// Merge asks Bitbucket whether the pull request can be merged and, if so,
// merges it at the snapshot's version. A stale version, a veto, or a
// conflict all come back as errors.
func (a *Adapter) Merge(ctx context.Context, pr source.PullRequest) error {
	mergePath := prPath(pr.Ref) + "/merge"

	var status MergeStatus
	if err := a.client.Get(ctx, mergePath, &status); err != nil {
		return fmt.Errorf("checking merge status of %s: %w", pr.Ref, err)
	}

	if !status.CanMerge {
		return fmt.Errorf("%w: %s", ErrCannotMerge, vetoSummary(status))
	}

	postPath := fmt.Sprintf("%s?version=%d", mergePath, pr.Version)
	if err := a.client.Post(ctx, postPath, nil, nil); err != nil {
		return fmt.Errorf("merging %s: %w", pr.Ref, err)
	}
	return nil
}

// toSnapshot converts the API representation into the run's read-only
// snapshot. The target repository identifies the PR, matching the
// activities and merge endpoints.
func (a *Adapter) toSnapshot(pr PullRequest) source.PullRequest {
	ref := source.PRRef{
		ProjectKey: pr.ToRef.Repository.Project.Key,
		RepoSlug:   pr.ToRef.Repository.Slug,
		ID:         pr.ID,
	}

	url := ""
	if len(pr.Links.Self) > 0 {
		url = pr.Links.Self[0].Href
	}
	if url == "" {
		url = fmt.Sprintf(
			"%s/projects/%s/repos/%s/pull-requests/%d",
			a.baseURL, ref.ProjectKey, ref.RepoSlug, ref.ID,
		)
	}

	return source.PullRequest{
		Ref:         ref,
		Version:     pr.Version,
		Title:       pr.Title,
		Description: pr.Description,
		State:       source.State(strings.ToUpper(pr.State)),
		URL:         url,
	}
}

// vetoSummary renders why Bitbucket refused a merge.
func vetoSummary(status MergeStatus) string {
	var parts []string
	if status.Conflicted {
		parts = append(parts, "merge conflicts")
	}
	for _, v := range status.Vetoes {
		msg := v.SummaryMessage
		if v.DetailedMessage != "" {
			msg += " (" + v.DetailedMessage + ")"
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		if status.Outcome != "" {
			return "outcome " + status.Outcome
		}
		return "no reason given"
	}
	return strings.Join(parts, "; ")
}

// prPath returns the REST path of a pull request resource.
func prPath(ref source.PRRef) string {
	return fmt.Sprintf(
		"/rest/api/1.0/projects/%s/repos/%s/pull-requests/%d",
		ref.ProjectKey, ref.RepoSlug, ref.ID,
	)
}
