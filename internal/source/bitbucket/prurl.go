package bitbucket

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nhle/polly-merge/internal/source"
)

// prURLPattern matches the pull request part of a browser URL path. A
// context path may precede it and a sub-page (/overview, /diff) may
// follow it.
var prURLPattern = regexp.MustCompile(
	`/(projects|users)/([^/]+)/repos/([^/]+)/pull-requests/(\d+)(?:/|$)`,
)

// ParsePullRequestURL extracts the pull request reference from a browser
// URL such as https://host/projects/P/repos/r/pull-requests/42/overview.
// Personal repositories (/users/jdoe/...) map to project key "~jdoe".
// Brackets, quotes and sentence punctuation around the URL are ignored.
func ParsePullRequestURL(raw string) (source.PRRef, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimLeft(trimmed, "(<\"'`")
	trimmed = strings.TrimRight(trimmed, ").,;:!?'\"`>")

	u, err := url.Parse(trimmed)
	if err != nil {
		return source.PRRef{}, fmt.Errorf("invalid pr url %q: %w", raw, err)
	}

	m := prURLPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return source.PRRef{}, fmt.Errorf("invalid pr url %q", raw)
	}

	id, err := strconv.Atoi(m[4])
	if err != nil {
		return source.PRRef{}, fmt.Errorf("invalid PR ID in %q: %w", raw, err)
	}

	key := m[2]
	if m[1] == "users" {
		key = "~" + key
	}

	return source.PRRef{ProjectKey: key, RepoSlug: m[3], ID: id}, nil
}
