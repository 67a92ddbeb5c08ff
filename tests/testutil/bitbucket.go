package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/nhle/polly-merge/internal/source/bitbucket"
)

// FakeBitbucket is an httptest server speaking the subset of the
// Bitbucket Server REST API used by polly-merge. Keys are "PROJECT/slug/id".
type FakeBitbucket struct {
	Server *httptest.Server
	Token  string

	mu          sync.Mutex
	dashboard   []bitbucket.PullRequest
	prs         map[string]bitbucket.PullRequest
	activities  map[string][]bitbucket.Activity
	mergeStatus map[string]bitbucket.MergeStatus
	mergeErrors map[string]int
	requests    []string
	merges      []string
}

// NewFakeBitbucket starts a fake server accepting token and closes it when
// the test completes.
func NewFakeBitbucket(t *testing.T, token string) *FakeBitbucket {
	t.Helper()

	f := &FakeBitbucket{
		Token:       token,
		prs:         make(map[string]bitbucket.PullRequest),
		activities:  make(map[string][]bitbucket.Activity),
		mergeStatus: make(map[string]bitbucket.MergeStatus),
		mergeErrors: make(map[string]int),
	}

	const prBase = "/rest/api/1.0/projects/{key}/repos/{slug}/pull-requests/{id}"

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/1.0/dashboard/pull-requests", f.handleDashboard)
	mux.HandleFunc("GET "+prBase, f.handlePR)
	mux.HandleFunc("GET "+prBase+"/activities", f.handleActivities)
	mux.HandleFunc("GET "+prBase+"/merge", f.handleMergeStatus)
	mux.HandleFunc("POST "+prBase+"/merge", f.handleMerge)

	f.Server = httptest.NewServer(f.authenticate(mux))
	t.Cleanup(f.Server.Close)

	return f
}

// Key builds the lookup key for a pull request.
func Key(project, slug string, id int) string {
	return fmt.Sprintf("%s/%s/%d", project, slug, id)
}

// NewPR builds an open pull request in project/slug with a self link on
// the fake server.
func (f *FakeBitbucket) NewPR(project, slug string, id int, description string) bitbucket.PullRequest {
	repo := bitbucket.Repository{
		Slug:    slug,
		Project: bitbucket.Project{Key: project},
	}
	return bitbucket.PullRequest{
		ID:          id,
		Version:     1,
		Title:       fmt.Sprintf("PR %d", id),
		Description: description,
		State:       "OPEN",
		FromRef:     bitbucket.Ref{ID: "refs/heads/feature", Repository: repo},
		ToRef:       bitbucket.Ref{ID: "refs/heads/main", Repository: repo},
		Links: bitbucket.Links{Self: []bitbucket.Link{{
			Href: fmt.Sprintf(
				"%s/projects/%s/repos/%s/pull-requests/%d",
				f.Server.URL, project, slug, id,
			),
		}}},
	}
}

// AddOpen registers pr on the dashboard and as a mergeable pull request.
func (f *FakeBitbucket) AddOpen(pr bitbucket.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := prKey(pr)
	f.dashboard = append(f.dashboard, pr)
	f.prs[key] = pr
	if _, ok := f.mergeStatus[key]; !ok {
		f.mergeStatus[key] = bitbucket.MergeStatus{CanMerge: true, Outcome: "CLEAN"}
	}
}

// SetPR registers a pull request that is not on the dashboard, such as a
// merge-after dependency.
func (f *FakeBitbucket) SetPR(pr bitbucket.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[prKey(pr)] = pr
}

// SetComments adds one COMMENTED activity per comment for the PR at key.
func (f *FakeBitbucket) SetComments(key string, comments ...bitbucket.ActivityComment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acts := make([]bitbucket.Activity, 0, len(comments)+1)
	acts = append(acts, bitbucket.Activity{ID: 1, Action: "OPENED"})
	for i, c := range comments {
		c := c
		acts = append(acts, bitbucket.Activity{
			ID:      i + 2,
			Action:  "COMMENTED",
			Comment: &c,
		})
	}
	f.activities[key] = acts
}

// SetMergeStatus overrides the merge status of the PR at key.
func (f *FakeBitbucket) SetMergeStatus(key string, status bitbucket.MergeStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeStatus[key] = status
}

// FailMerge makes the merge POST for key respond with status.
func (f *FakeBitbucket) FailMerge(key string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeErrors[key] = status
}

// Merges returns the keys of merged pull requests with the version sent,
// as "key@version", in call order.
func (f *FakeBitbucket) Merges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.merges...)
}

// Requests returns "METHOD path?query" for every request received.
func (f *FakeBitbucket) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeBitbucket) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+f.Token {
			writeErrors(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeBitbucket) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	values := append([]bitbucket.PullRequest(nil), f.dashboard...)
	f.mu.Unlock()

	writePage(w, r, values)
}

func (f *FakeBitbucket) handlePR(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	pr, ok := f.prs[pathKey(r)]
	f.mu.Unlock()

	if !ok {
		writeErrors(w, http.StatusNotFound, "Pull request does not exist")
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (f *FakeBitbucket) handleActivities(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	acts := append([]bitbucket.Activity(nil), f.activities[pathKey(r)]...)
	f.mu.Unlock()

	writePage(w, r, acts)
}

func (f *FakeBitbucket) handleMergeStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status, ok := f.mergeStatus[pathKey(r)]
	f.mu.Unlock()

	if !ok {
		writeErrors(w, http.StatusNotFound, "Pull request does not exist")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (f *FakeBitbucket) handleMerge(w http.ResponseWriter, r *http.Request) {
	key := pathKey(r)

	f.mu.Lock()
	defer f.mu.Unlock()

	if status, ok := f.mergeErrors[key]; ok {
		writeErrors(w, status, "Pull request could not be merged")
		return
	}

	pr, ok := f.prs[key]
	if !ok {
		writeErrors(w, http.StatusNotFound, "Pull request does not exist")
		return
	}

	version := r.URL.Query().Get("version")
	if version != strconv.Itoa(pr.Version) {
		writeErrors(w, http.StatusConflict, "Pull request version is out of date")
		return
	}

	f.merges = append(f.merges, key+"@"+version)
	pr.State = "MERGED"
	pr.Version++
	f.prs[key] = pr
	writeJSON(w, http.StatusOK, pr)
}

// writePage serves values honouring the start and limit query parameters.
func writePage[T any](w http.ResponseWriter, r *http.Request, values []T) {
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 25
	}

	if start > len(values) {
		start = len(values)
	}
	end := start + limit
	if end > len(values) {
		end = len(values)
	}

	page := bitbucket.Page[T]{
		Size:       end - start,
		Limit:      limit,
		Start:      start,
		IsLastPage: end >= len(values),
		Values:     values[start:end],
	}
	if !page.IsLastPage {
		page.NextPageStart = end
	}
	writeJSON(w, http.StatusOK, page)
}

func writeErrors(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, bitbucket.BBErrorResponse{
		Errors: []bitbucket.BBError{{Message: message}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathKey(r *http.Request) string {
	return r.PathValue("key") + "/" + r.PathValue("slug") + "/" + r.PathValue("id")
}

func prKey(pr bitbucket.PullRequest) string {
	return Key(pr.ToRef.Repository.Project.Key, pr.ToRef.Repository.Slug, pr.ID)
}
