package source

import (
	"errors"
	"fmt"
)

// AuthError indicates that authentication has failed or expired for the
// Bitbucket host. It is returned by the client when a 401 response is received.
type AuthError struct {
	Host    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Host, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// State is the lifecycle state Bitbucket reports for a pull request.
type State string

const (
	StateOpen     State = "OPEN"
	StateMerged   State = "MERGED"
	StateDeclined State = "DECLINED"
)

// PRRef identifies a pull request on the server.
type PRRef struct {
	// ProjectKey is the project key, or "~slug" for a personal repository.
	ProjectKey string
	RepoSlug   string
	ID         int
}

// String returns the ref in "PROJECT/repo-slug#id" form.
func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.ProjectKey, r.RepoSlug, r.ID)
}

// PullRequest is a read-only snapshot of a pull request, fetched fresh on
// every run.
type PullRequest struct {
	Ref PRRef

	// Version is the optimistic-locking version the merge call must echo.
	Version int

	Title       string
	Description string
	State       State

	// URL is the browser URL of the pull request.
	URL string
}
