package types

// GhostLogin is the sentinel login recorded when an upstream user
// reference is absent or carries no login. Persisted user fields are
// always either a real login or this value, never empty.
const GhostLogin = "Ghost"

// OwnerType defines the kind of account that parents repositories
type OwnerType string

const (
	OwnerTypeOrg  OwnerType = "org"
	OwnerTypeUser OwnerType = "user"
)

// Owner identifies an organization or user account on the upstream
// platform. It is immutable and used as the stable path prefix for all
// store keys.
type Owner struct {
	Type OwnerType
	Name string
}

// OrgOwner creates an organization owner
func OrgOwner(name string) Owner {
	return Owner{Type: OwnerTypeOrg, Name: name}
}

// UserOwner creates a user-account owner
func UserOwner(name string) Owner {
	return Owner{Type: OwnerTypeUser, Name: name}
}

// OrgName returns the owner name for organization owners, "" otherwise
func (o Owner) OrgName() string {
	if o.Type == OwnerTypeOrg {
		return o.Name
	}
	return ""
}

// UserName returns the owner name for user owners, "" otherwise
func (o Owner) UserName() string {
	if o.Type == OwnerTypeUser {
		return o.Name
	}
	return ""
}

// IsZero reports whether the owner is unset
func (o Owner) IsZero() bool {
	return o.Name == ""
}

func (o Owner) String() string {
	return string(o.Type) + "/" + o.Name
}

// Organization is the mirrored record of an upstream organization: its
// name plus the repositories observed and accepted on the last scan, in
// upstream order.
type Organization struct {
	Name         string   `json:"name"`
	Repositories []string `json:"repositories"`
}

// UserRepositories is the mirrored list of a user account's repositories
type UserRepositories struct {
	UserName  string   `json:"userName"`
	RepoNames []string `json:"repoNames"`
}

// Repository is the mirrored record of an upstream repository. Exactly
// one of OrgName and OwnerUserName is set, matching the owner type.
// FirstIssue and LastIssue bound the non-PR issue numbers observed at
// scan time; both are null until the first issue is seen. LastIssue is
// monotonically non-decreasing across updates.
type Repository struct {
	OrgName       *string `json:"orgName"`
	OwnerUserName *string `json:"ownerUserName"`
	Name          string  `json:"name"`
	FirstIssue    *int    `json:"firstIssue"`
	LastIssue     *int    `json:"lastIssue"`
	RepositoryID  int64   `json:"repositoryId"`
}

// Owner reconstructs the owner from the repository record
func (r *Repository) Owner() Owner {
	if r.OrgName != nil {
		return OrgOwner(*r.OrgName)
	}
	if r.OwnerUserName != nil {
		return UserOwner(*r.OwnerUserName)
	}
	return Owner{}
}

// Issue is the mirrored record of a non-PR issue. Times are epoch
// milliseconds. Pull requests are never persisted; PullRequest exists
// only because the upstream API reports it on the issue resource.
type Issue struct {
	ParentRepo  string         `json:"parentRepo"`
	CreatedAt   int64          `json:"createdAt"`
	ClosedAt    *int64         `json:"closedAt"`
	Labels      []string       `json:"labels"`
	Assignees   []string       `json:"assignees"`
	Title       string         `json:"title"`
	HTMLURL     string         `json:"htmlUrl"`
	Number      int            `json:"number"`
	Body        string         `json:"body"`
	PullRequest bool           `json:"pullRequest"`
	Closed      bool           `json:"closed"`
	Comments    []IssueComment `json:"comments"`
	Reporter    string         `json:"reporter"`
	IssueEvents []IssueEvent   `json:"issueEvents"`
}

// IssueComment is a single comment on an issue, in upstream order
type IssueComment struct {
	UserLogin string `json:"userLogin"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Recognized issue-event kinds. Events of any other kind are dropped
// silently when mirroring.
const (
	EventAssigned   = "assigned"
	EventUnassigned = "unassigned"
	EventLabeled    = "labeled"
	EventUnlabeled  = "unlabeled"
	EventRenamed    = "renamed"
	EventReopened   = "reopened"
	EventMerged     = "merged"
	EventClosed     = "closed"
)

// IssueEvent is one entry of an issue's event log. Data carries the
// kind-specific payload for assigned/unassigned, labeled/unlabeled and
// renamed events, and is null for the remaining kinds.
type IssueEvent struct {
	Type           string `json:"type"`
	CreatedAt      int64  `json:"createdAt"`
	ActorUserLogin string `json:"actorUserLogin"`
	Data           any    `json:"data"`
}

// IssueEventAssignedUnassigned is the payload of assigned and unassigned
// events. Assigned is true for assigned, false for unassigned.
type IssueEventAssignedUnassigned struct {
	Assignee string `json:"assignee"`
	Assigner string `json:"assigner"`
	Assigned bool   `json:"assigned"`
}

// IssueEventLabeledUnlabeled is the payload of labeled and unlabeled
// events. Labeled is true for labeled, false for unlabeled.
type IssueEventLabeledUnlabeled struct {
	Label   string `json:"label"`
	Labeled bool   `json:"labeled"`
}

// IssueEventRenamed is the payload of renamed events
type IssueEventRenamed struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// User is the mirrored record of an upstream user account
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ResourceChangeEvent records that a mirrored issue's content changed.
// Time is epoch milliseconds and doubles as the change-log ordering key.
type ResourceChangeEvent struct {
	Time        int64  `json:"time"`
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	UUID        string `json:"uuid"`
	IssueNumber int    `json:"issueNumber"`
}

// BulkIssues is the read API's envelope for bulk issue responses
type BulkIssues struct {
	Issues []*Issue `json:"issues"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 {
	return &v
}

// StringPtr returns a pointer to v
func StringPtr(v string) *string {
	return &v
}
