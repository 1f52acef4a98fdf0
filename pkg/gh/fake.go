package gh

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Client for tests. Fixtures are added through the
// Add helpers and every lookup is keyed the way the real API is, so test
// setups read like the upstream state they describe.
//
// The zero value is ready to use. Intercept, when set, runs before every
// call with a short call descriptor such as "issues jgwest/rogue-cloud"
// and can inject an error for that call.
type Fake struct {
	mu sync.Mutex

	orgs          map[string]*Account
	users         map[string]*User
	repos         map[string]*Repo
	issues        map[string][]*Issue
	comments      map[string][]IssueComment
	events        map[string][]IssueEvent
	activity      map[string][]ActivityEvent
	ownerActivity map[string][]ActivityEvent
	repoEvents    map[string][]IssueEvent

	quota    *QuotaSnapshot
	requests int

	// Intercept, when non-nil, can fail any call by returning an error
	Intercept func(call string) error
}

// NewFake creates an empty fake upstream
func NewFake() *Fake {
	return &Fake{}
}

func repoKey(owner, name string) string {
	return owner + "/" + name
}

func issueKey(owner, name string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, name, number)
}

// AddOrg registers an organization
func (f *Fake) AddOrg(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orgs == nil {
		f.orgs = make(map[string]*Account)
	}
	f.orgs[name] = &Account{Login: name, ID: int64(len(f.orgs) + 1)}
}

// AddUserAccount registers a user account
func (f *Fake) AddUserAccount(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = make(map[string]*User)
	}
	if u.Login != nil {
		f.users[*u.Login] = &u
	}
}

// AddRepo registers a repository and returns its reference
func (f *Fake) AddRepo(owner, name string, id int64) Repo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repos == nil {
		f.repos = make(map[string]*Repo)
	}
	r := Repo{OwnerLogin: owner, Name: name, ID: id}
	f.repos[repoKey(owner, name)] = &r
	return r
}

// AddIssue registers an issue under its repository
func (f *Fake) AddIssue(owner, repo string, issue Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issues == nil {
		f.issues = make(map[string][]*Issue)
	}
	key := repoKey(owner, repo)
	copied := issue
	f.issues[key] = append(f.issues[key], &copied)
}

// SetIssue replaces an issue registered with AddIssue, matched by
// number, or adds it when absent
func (f *Fake) SetIssue(owner, repo string, issue Issue) {
	f.mu.Lock()
	key := repoKey(owner, repo)
	for i, existing := range f.issues[key] {
		if existing.Number == issue.Number {
			copied := issue
			f.issues[key][i] = &copied
			f.mu.Unlock()
			return
		}
	}
	f.mu.Unlock()
	f.AddIssue(owner, repo, issue)
}

// AddComment appends a comment to an issue
func (f *Fake) AddComment(owner, repo string, number int, comment IssueComment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.comments == nil {
		f.comments = make(map[string][]IssueComment)
	}
	key := issueKey(owner, repo, number)
	f.comments[key] = append(f.comments[key], comment)
}

// AddIssueEvent appends an event to an issue's event feed and to the
// repository-wide issue events feed
func (f *Fake) AddIssueEvent(owner, repo string, number int, event IssueEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[string][]IssueEvent)
	}
	if f.repoEvents == nil {
		f.repoEvents = make(map[string][]IssueEvent)
	}
	key := issueKey(owner, repo, number)
	f.events[key] = append(f.events[key], event)

	withIssue := event
	if withIssue.Issue == nil {
		withIssue.Issue = f.issueRefLocked(owner, repo, number)
	}
	rk := repoKey(owner, repo)
	// Feeds are newest first
	f.repoEvents[rk] = append([]IssueEvent{withIssue}, f.repoEvents[rk]...)
}

// AddActivity prepends an entry to the repository activity feed and to
// the owner's feed. The event's RepoName defaults to repo.
func (f *Fake) AddActivity(owner, repo string, event ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activity == nil {
		f.activity = make(map[string][]ActivityEvent)
	}
	if f.ownerActivity == nil {
		f.ownerActivity = make(map[string][]ActivityEvent)
	}
	if event.RepoName == "" {
		event.RepoName = repo
	}
	key := repoKey(owner, repo)
	f.activity[key] = append([]ActivityEvent{event}, f.activity[key]...)
	f.ownerActivity[owner] = append([]ActivityEvent{event}, f.ownerActivity[owner]...)
}

// SetQuota sets the snapshot Quota returns. A nil snapshot models a
// server without enforced quotas.
func (f *Fake) SetQuota(q *QuotaSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quota = q
}

// Requests returns how many client calls have been made
func (f *Fake) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *Fake) issueRefLocked(owner, repo string, number int) *IssueRef {
	for _, issue := range f.issues[repoKey(owner, repo)] {
		if issue.Number == number {
			return &IssueRef{
				ID:          issue.ID,
				Number:      issue.Number,
				HTMLURL:     issue.HTMLURL,
				PullRequest: issue.PullRequest,
			}
		}
	}
	return &IssueRef{Number: number}
}

func (f *Fake) begin(call string) error {
	f.mu.Lock()
	f.requests++
	intercept := f.Intercept
	f.mu.Unlock()
	if intercept != nil {
		return intercept(call)
	}
	return nil
}

// Organization implements Client
func (f *Fake) Organization(ctx context.Context, name string) (*Account, error) {
	if err := f.begin("organization " + name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[name]
	if !ok {
		return nil, fmt.Errorf("organization %s not found", name)
	}
	return org, nil
}

// User implements Client
func (f *Fake) User(ctx context.Context, login string) (*User, error) {
	if err := f.begin("user " + login); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[login]
	if !ok {
		return nil, fmt.Errorf("user %s not found", login)
	}
	copied := *user
	return &copied, nil
}

// OrgRepositories implements Client
func (f *Fake) OrgRepositories(ctx context.Context, org string) ([]Repo, error) {
	if err := f.begin("org-repos " + org); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[org]; !ok {
		return nil, fmt.Errorf("organization %s not found", org)
	}
	return f.ownedReposLocked(org), nil
}

// UserRepositories implements Client
func (f *Fake) UserRepositories(ctx context.Context, user string) ([]Repo, error) {
	if err := f.begin("user-repos " + user); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user]; !ok {
		return nil, fmt.Errorf("user %s not found", user)
	}
	return f.ownedReposLocked(user), nil
}

func (f *Fake) isOrgLocked(owner string) bool {
	_, ok := f.orgs[owner]
	return ok
}

func (f *Fake) ownedReposLocked(owner string) []Repo {
	var repos []Repo
	for _, r := range f.repos {
		if r.OwnerLogin == owner {
			copied := *r
			copied.OwnerIsOrg = f.isOrgLocked(owner)
			repos = append(repos, copied)
		}
	}
	return repos
}

// Repository implements Client
func (f *Fake) Repository(ctx context.Context, owner, name string) (*Repo, error) {
	if err := f.begin("repository " + repoKey(owner, name)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, ok := f.repos[repoKey(owner, name)]
	if !ok {
		return nil, fmt.Errorf("repository %s/%s not found", owner, name)
	}
	copied := *repo
	copied.OwnerIsOrg = f.isOrgLocked(owner)
	return &copied, nil
}

// Issues implements Client
func (f *Fake) Issues(ctx context.Context, owner, repo string, fn func(Issue) error) error {
	if err := f.begin("issues " + repoKey(owner, repo)); err != nil {
		return err
	}
	f.mu.Lock()
	issues := make([]Issue, 0, len(f.issues[repoKey(owner, repo)]))
	for _, issue := range f.issues[repoKey(owner, repo)] {
		issues = append(issues, *issue)
	}
	f.mu.Unlock()
	for _, issue := range issues {
		if err := fn(issue); err != nil {
			return err
		}
	}
	return nil
}

// Issue implements Client
func (f *Fake) Issue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	if err := f.begin("issue " + issueKey(owner, repo, number)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, issue := range f.issues[repoKey(owner, repo)] {
		if issue.Number == number {
			copied := *issue
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("issue %s/%s#%d not found", owner, repo, number)
}

// IssueComments implements Client
func (f *Fake) IssueComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error) {
	if err := f.begin("comments " + issueKey(owner, repo, number)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IssueComment(nil), f.comments[issueKey(owner, repo, number)]...), nil
}

// IssueEvents implements Client
func (f *Fake) IssueEvents(ctx context.Context, owner, repo string, number int) ([]IssueEvent, error) {
	if err := f.begin("issue-events " + issueKey(owner, repo, number)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IssueEvent(nil), f.events[issueKey(owner, repo, number)]...), nil
}

// OrgActivity implements Client
func (f *Fake) OrgActivity(ctx context.Context, org string, fn func([]ActivityEvent) (bool, error)) error {
	if err := f.begin("org-activity " + org); err != nil {
		return err
	}
	f.mu.Lock()
	events := append([]ActivityEvent(nil), f.ownerActivity[org]...)
	f.mu.Unlock()
	return pageFeed(events, fn)
}

// UserActivity implements Client
func (f *Fake) UserActivity(ctx context.Context, user string, fn func([]ActivityEvent) (bool, error)) error {
	if err := f.begin("user-activity " + user); err != nil {
		return err
	}
	f.mu.Lock()
	events := append([]ActivityEvent(nil), f.ownerActivity[user]...)
	f.mu.Unlock()
	return pageFeed(events, fn)
}

// RepositoryActivity implements Client
func (f *Fake) RepositoryActivity(ctx context.Context, owner, repo string, fn func([]ActivityEvent) (bool, error)) error {
	if err := f.begin("activity " + repoKey(owner, repo)); err != nil {
		return err
	}
	f.mu.Lock()
	events := append([]ActivityEvent(nil), f.activity[repoKey(owner, repo)]...)
	f.mu.Unlock()
	return pageFeed(events, fn)
}

// RepositoryIssueEvents implements Client
func (f *Fake) RepositoryIssueEvents(ctx context.Context, owner, repo string, fn func([]IssueEvent) (bool, error)) error {
	if err := f.begin("repo-issue-events " + repoKey(owner, repo)); err != nil {
		return err
	}
	f.mu.Lock()
	events := append([]IssueEvent(nil), f.repoEvents[repoKey(owner, repo)]...)
	f.mu.Unlock()
	return pageFeed(events, fn)
}

// Quota implements Client
func (f *Fake) Quota(ctx context.Context) (*QuotaSnapshot, error) {
	if err := f.begin("quota"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quota == nil {
		return nil, nil
	}
	copied := *f.quota
	return &copied, nil
}

// LastQuota implements Client
func (f *Fake) LastQuota() *QuotaSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quota == nil {
		return nil
	}
	copied := *f.quota
	return &copied
}

func pageFeed[T any](events []T, fn func([]T) (bool, error)) error {
	for start := 0; start < len(events); start += listPageSize {
		end := start + listPageSize
		if end > len(events) {
			end = len(events)
		}
		more, err := fn(events[start:end])
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	if len(events) == 0 {
		_, err := fn(nil)
		return err
	}
	return nil
}
