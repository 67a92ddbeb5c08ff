package bitbucket

// Page is a paginated response from a Bitbucket Server collection endpoint.
type Page[T any] struct {
	Size          int  `json:"size"`
	Limit         int  `json:"limit"`
	Start         int  `json:"start"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
	Values        []T  `json:"values"`
}

// PullRequest represents a Bitbucket Server pull request.
type PullRequest struct {
	ID          int         `json:"id"`
	Version     int         `json:"version"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	State       string      `json:"state"` // OPEN, MERGED, DECLINED
	CreatedDate int64       `json:"createdDate"`
	UpdatedDate int64       `json:"updatedDate"`
	FromRef     Ref         `json:"fromRef"`
	ToRef       Ref         `json:"toRef"`
	Author      Participant `json:"author"`
	Links       Links       `json:"links"`
}

// Ref represents a branch reference in a pull request.
type Ref struct {
	ID           string     `json:"id"`
	DisplayID    string     `json:"displayId"`
	LatestCommit string     `json:"latestCommit,omitempty"`
	Repository   Repository `json:"repository"`
}

// Repository represents a Bitbucket repository.
type Repository struct {
	Slug    string  `json:"slug"`
	Project Project `json:"project"`
}

// Project represents a Bitbucket project.
type Project struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Participant represents a user's role on a pull request.
type Participant struct {
	User User   `json:"user"`
	Role string `json:"role"` // AUTHOR, REVIEWER
}

// User represents a Bitbucket user.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug,omitempty"`
}

// Links holds the hypermedia links of a resource.
type Links struct {
	Self []Link `json:"self"`
}

// Link is a single hypermedia link.
type Link struct {
	Href string `json:"href"`
}

// Activity represents an event on a pull request
// (comment, approval, rescope, merge, etc.).
type Activity struct {
	ID          int              `json:"id"`
	Action      string           `json:"action"` // COMMENTED, APPROVED, RESCOPED, MERGED, etc.
	Comment     *ActivityComment `json:"comment,omitempty"`
	CreatedDate int64            `json:"createdDate"`
	User        User             `json:"user"`
}

// ActivityComment is a comment attached to a PR activity. Replies are
// nested under Comments to arbitrary depth.
type ActivityComment struct {
	ID          int               `json:"id"`
	Text        string            `json:"text"`
	Author      User              `json:"author"`
	CreatedDate int64             `json:"createdDate"`
	Comments    []ActivityComment `json:"comments,omitempty"`
}

// MergeStatus is the response of GET .../pull-requests/{id}/merge.
type MergeStatus struct {
	CanMerge   bool   `json:"canMerge"`
	Conflicted bool   `json:"conflicted"`
	Outcome    string `json:"outcome"` // CLEAN, CONFLICTED, UNKNOWN
	Vetoes     []Veto `json:"vetoes"`
}

// Veto is a merge check that currently blocks a merge.
type Veto struct {
	SummaryMessage  string `json:"summaryMessage"`
	DetailedMessage string `json:"detailedMessage"`
}

// BBErrorResponse is the Bitbucket Server error response format.
type BBErrorResponse struct {
	Errors []BBError `json:"errors"`
}

// BBError is a single error entry within a Bitbucket error response.
type BBError struct {
	Context       string `json:"context"`
	Message       string `json:"message"`
	ExceptionName string `json:"exceptionName"`
}
