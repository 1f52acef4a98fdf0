package gh

import (
	"context"
	"time"
)

// QuotaSnapshot is the upstream rate-limit state at a point in time. A
// nil snapshot means the server does not enforce request quotas.
type QuotaSnapshot struct {
	Remaining      int64
	SecondsToReset int64
	TotalLimit     int64
}

// Account is the minimal identity of an organization or user account
type Account struct {
	Login string
	ID    int64
}

// Repo is an upstream repository reference
type Repo struct {
	OwnerLogin string
	OwnerIsOrg bool
	Name       string
	ID         int64
}

// FullName returns the owner-qualified repository name
func (r Repo) FullName() string {
	return r.OwnerLogin + "/" + r.Name
}

// Issue is an upstream issue as fetched. Nil ReporterLogin means the
// reporting account no longer resolves to a login. AssigneeLogins has
// login-less assignees already dropped, in upstream order.
type Issue struct {
	ID             int64
	Number         int
	Title          string
	Body           string
	HTMLURL        string
	Closed         bool
	PullRequest    bool
	CreatedAt      time.Time
	ClosedAt       *time.Time
	ReporterLogin  *string
	AssigneeLogins []string
	Labels         []string
}

// IssueComment is one upstream comment on an issue
type IssueComment struct {
	UserLogin *string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is an upstream user account. Login is nil for deleted accounts.
type User struct {
	Login *string
	Name  string
	Email string
}

// IssueRef identifies the issue an event refers to. The ID is the
// issue's immutable upstream id; when a repository is moved the number
// in HTMLURL points at the new location while the ID stays fixed.
type IssueRef struct {
	ID          int64
	Number      int
	HTMLURL     string
	PullRequest bool
}

// Recognized kinds on the repository activity feed
const (
	ActivityIssues       = "IssuesEvent"
	ActivityIssueComment = "IssueCommentEvent"
)

// ActivityEvent is one entry of an activity feed. Issue is nil when the
// event payload carries no issue. RepoName is the short name of the
// repository the event happened in; owner-level feeds mix events from
// all of the owner's repositories.
type ActivityEvent struct {
	Kind       string
	CreatedAt  time.Time
	ActorLogin *string
	RepoName   string
	Issue      *IssueRef
}

// IssueEvent is one entry of an issue-events feed. Issue is set on the
// per-repository feed and may be nil on the per-issue feed. The payload
// pointers are populated for the kinds that carry them.
type IssueEvent struct {
	Kind       string
	CreatedAt  time.Time
	ActorLogin *string
	Issue      *IssueRef

	AssigneeLogin *string
	AssignerLogin *string
	Label         *string
	RenameFrom    *string
	RenameTo      *string
}

// Client is the upstream platform client the ingestion engine drives.
// All listing methods are internally paged; the feed methods hand whole
// pages to the callback, which returns false to stop early.
type Client interface {
	// Accounts
	Organization(ctx context.Context, name string) (*Account, error)
	User(ctx context.Context, login string) (*User, error)

	// Repositories
	OrgRepositories(ctx context.Context, org string) ([]Repo, error)
	UserRepositories(ctx context.Context, user string) ([]Repo, error)
	Repository(ctx context.Context, owner, name string) (*Repo, error)

	// Issues
	Issues(ctx context.Context, owner, repo string, fn func(Issue) error) error
	Issue(ctx context.Context, owner, repo string, number int) (*Issue, error)
	IssueComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error)
	IssueEvents(ctx context.Context, owner, repo string, number int) ([]IssueEvent, error)

	// Activity feeds
	OrgActivity(ctx context.Context, org string, fn func([]ActivityEvent) (bool, error)) error
	UserActivity(ctx context.Context, user string, fn func([]ActivityEvent) (bool, error)) error
	RepositoryActivity(ctx context.Context, owner, repo string, fn func([]ActivityEvent) (bool, error)) error
	RepositoryIssueEvents(ctx context.Context, owner, repo string, fn func([]IssueEvent) (bool, error)) error

	// Quota returns the quota snapshot, or nil when the server does not
	// enforce quotas
	Quota(ctx context.Context) (*QuotaSnapshot, error)

	// LastQuota returns the most recently observed quota snapshot
	// without a round trip, or nil when none has been seen or quotas
	// are unenforced
	LastQuota() *QuotaSnapshot
}
