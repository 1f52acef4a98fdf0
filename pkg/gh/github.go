package gh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	gogithub "github.com/google/go-github/v70/github"

	"github.com/cuemby/ghmirror/pkg/log"
)

const listPageSize = 100

// The platform reports this remaining-request count when quotas are not
// enforced on the server.
const unenforcedQuotaRemaining = 1000000

// Config holds the upstream connection settings
type Config struct {
	// Server is the platform host, for example "github.com" or an
	// enterprise host. Empty means github.com.
	Server string

	// Username and Password authenticate requests. An empty Username
	// with a non-empty Password is treated as a personal access token.
	Username string
	Password string
}

// GitHubClient implements Client against the GitHub REST API
type GitHubClient struct {
	client   *gogithub.Client
	lastRate atomic.Pointer[gogithub.Rate]
}

// NewClient creates a GitHub API client from the connection settings
func NewClient(cfg Config) (*GitHubClient, error) {
	var httpClient *http.Client
	if cfg.Username != "" {
		tp := &gogithub.BasicAuthTransport{
			Username: cfg.Username,
			Password: cfg.Password,
		}
		httpClient = tp.Client()
	}

	client := gogithub.NewClient(httpClient)
	if cfg.Username == "" && cfg.Password != "" {
		client = client.WithAuthToken(cfg.Password)
	}

	if cfg.Server != "" && cfg.Server != "github.com" {
		base := cfg.Server
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		var err error
		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("failed to configure enterprise URLs: %w", err)
		}
	}

	log.WithComponent("gh").Debug().
		Str("server", cfg.Server).
		Bool("authenticated", cfg.Username != "" || cfg.Password != "").
		Msg("Created upstream client")

	return &GitHubClient{client: client}, nil
}

// track records the quota headers carried on a response, so LastQuota
// can answer without another round trip. Responses from servers that do
// not enforce quotas are not recorded.
func (c *GitHubClient) track(resp *gogithub.Response) {
	if resp == nil || resp.Rate.Limit == 0 || resp.Rate.Remaining >= unenforcedQuotaRemaining {
		return
	}
	rate := resp.Rate
	c.lastRate.Store(&rate)
}

// LastQuota implements Client
func (c *GitHubClient) LastQuota() *QuotaSnapshot {
	rate := c.lastRate.Load()
	if rate == nil {
		return nil
	}
	seconds := int64(time.Until(rate.Reset.Time).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return &QuotaSnapshot{
		Remaining:      int64(rate.Remaining),
		SecondsToReset: seconds,
		TotalLimit:     int64(rate.Limit),
	}
}

// Organization fetches the named organization
func (c *GitHubClient) Organization(ctx context.Context, name string) (*Account, error) {
	org, resp, err := c.client.Organizations.Get(ctx, name)
	c.track(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization %s: %w", name, err)
	}
	return &Account{Login: org.GetLogin(), ID: org.GetID()}, nil
}

// User fetches the named user account
func (c *GitHubClient) User(ctx context.Context, login string) (*User, error) {
	user, resp, err := c.client.Users.Get(ctx, login)
	c.track(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", login, err)
	}
	return convertUser(user), nil
}

// OrgRepositories lists all repositories of an organization
func (c *GitHubClient) OrgRepositories(ctx context.Context, org string) ([]Repo, error) {
	var repos []Repo
	opts := &gogithub.RepositoryListByOrgOptions{
		ListOptions: gogithub.ListOptions{PerPage: listPageSize},
	}
	for {
		page, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		c.track(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of organization %s: %w", org, err)
		}
		for _, r := range page {
			repos = append(repos, convertRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// UserRepositories lists all repositories of a user account
func (c *GitHubClient) UserRepositories(ctx context.Context, user string) ([]Repo, error) {
	var repos []Repo
	opts := &gogithub.RepositoryListByUserOptions{
		ListOptions: gogithub.ListOptions{PerPage: listPageSize},
	}
	for {
		page, resp, err := c.client.Repositories.ListByUser(ctx, user, opts)
		c.track(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of user %s: %w", user, err)
		}
		for _, r := range page {
			repos = append(repos, convertRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// Repository fetches a single repository
func (c *GitHubClient) Repository(ctx context.Context, owner, name string) (*Repo, error) {
	repo, resp, err := c.client.Repositories.Get(ctx, owner, name)
	c.track(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, err)
	}
	r := convertRepo(repo)
	return &r, nil
}

// Issues streams every issue of a repository, open and closed, to fn
func (c *GitHubClient) Issues(ctx context.Context, owner, repo string, fn func(Issue) error) error {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gogithub.ListOptions{PerPage: listPageSize},
	}
	for {
		page, resp, err := c.client.Issues.ListByRepo(ctx, owner, repo, opts)
		c.track(resp)
		if err != nil {
			return fmt.Errorf("failed to list issues of %s/%s: %w", owner, repo, err)
		}
		for _, issue := range page {
			if err := fn(convertIssue(issue)); err != nil {
				return err
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

// Issue fetches a single issue by number
func (c *GitHubClient) Issue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	issue, resp, err := c.client.Issues.Get(ctx, owner, repo, number)
	c.track(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s/%s#%d: %w", owner, repo, number, err)
	}
	converted := convertIssue(issue)
	return &converted, nil
}

// IssueComments lists all comments of an issue in upstream order
func (c *GitHubClient) IssueComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error) {
	var comments []IssueComment
	opts := &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: listPageSize},
	}
	for {
		page, resp, err := c.client.Issues.ListComments(ctx, owner, repo, number, opts)
		c.track(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments of %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, comment := range page {
			comments = append(comments, IssueComment{
				UserLogin: userLogin(comment.User),
				Body:      comment.GetBody(),
				CreatedAt: comment.GetCreatedAt().Time,
				UpdatedAt: comment.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// IssueEvents lists all events of a single issue in upstream order
func (c *GitHubClient) IssueEvents(ctx context.Context, owner, repo string, number int) ([]IssueEvent, error) {
	var events []IssueEvent
	opts := &gogithub.ListOptions{PerPage: listPageSize}
	for {
		page, resp, err := c.client.Issues.ListIssueEvents(ctx, owner, repo, number, opts)
		c.track(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list events of %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, event := range page {
			events = append(events, convertIssueEvent(event))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return events, nil
}

// OrgActivity pages through the organization-wide activity feed, newest
// first, handing each page to fn. fn returns false to stop.
func (c *GitHubClient) OrgActivity(ctx context.Context, org string, fn func([]ActivityEvent) (bool, error)) error {
	opts := &gogithub.ListOptions{PerPage: listPageSize}
	for {
		page, resp, err := c.client.Activity.ListEventsForOrganization(ctx, org, opts)
		c.track(resp)
		if err != nil {
			return fmt.Errorf("failed to list activity of organization %s: %w", org, err)
		}
		events := make([]ActivityEvent, 0, len(page))
		for _, event := range page {
			events = append(events, convertActivityEvent(event))
		}
		more, err := fn(events)
		if err != nil {
			return err
		}
		if !more || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

// UserActivity pages through a user account's activity feed, newest
// first, handing each page to fn. fn returns false to stop.
func (c *GitHubClient) UserActivity(ctx context.Context, user string, fn func([]ActivityEvent) (bool, error)) error {
	opts := &gogithub.ListOptions{PerPage: listPageSize}
	for {
		page, resp, err := c.client.Activity.ListEventsPerformedByUser(ctx, user, false, opts)
		c.track(resp)
		if err != nil {
			return fmt.Errorf("failed to list activity of user %s: %w", user, err)
		}
		events := make([]ActivityEvent, 0, len(page))
		for _, event := range page {
			events = append(events, convertActivityEvent(event))
		}
		more, err := fn(events)
		if err != nil {
			return err
		}
		if !more || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

// RepositoryActivity pages through the repository activity feed, newest
// first, handing each page to fn. fn returns false to stop.
func (c *GitHubClient) RepositoryActivity(ctx context.Context, owner, repo string, fn func([]ActivityEvent) (bool, error)) error {
	opts := &gogithub.ListOptions{PerPage: listPageSize}
	for {
		page, resp, err := c.client.Activity.ListRepositoryEvents(ctx, owner, repo, opts)
		c.track(resp)
		if err != nil {
			return fmt.Errorf("failed to list activity of %s/%s: %w", owner, repo, err)
		}
		events := make([]ActivityEvent, 0, len(page))
		for _, event := range page {
			events = append(events, convertActivityEvent(event))
		}
		more, err := fn(events)
		if err != nil {
			return err
		}
		if !more || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

// RepositoryIssueEvents pages through the repository-wide issue events
// feed, newest first, handing each page to fn. fn returns false to stop.
func (c *GitHubClient) RepositoryIssueEvents(ctx context.Context, owner, repo string, fn func([]IssueEvent) (bool, error)) error {
	opts := &gogithub.ListOptions{PerPage: listPageSize}
	for {
		page, resp, err := c.client.Issues.ListRepositoryEvents(ctx, owner, repo, opts)
		c.track(resp)
		if err != nil {
			return fmt.Errorf("failed to list issue events of %s/%s: %w", owner, repo, err)
		}
		events := make([]IssueEvent, 0, len(page))
		for _, event := range page {
			events = append(events, convertIssueEvent(event))
		}
		more, err := fn(events)
		if err != nil {
			return err
		}
		if !more || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

// Quota returns the core rate-limit snapshot, or nil when the server
// does not enforce quotas
func (c *GitHubClient) Quota(ctx context.Context) (*QuotaSnapshot, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		// Enterprise servers without rate limiting 404 on this endpoint
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil || core.Remaining >= unenforcedQuotaRemaining {
		return nil, nil
	}
	rate := gogithub.Rate{Limit: core.Limit, Remaining: core.Remaining, Reset: core.Reset}
	c.lastRate.Store(&rate)
	seconds := int64(time.Until(core.Reset.Time).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return &QuotaSnapshot{
		Remaining:      int64(core.Remaining),
		SecondsToReset: seconds,
		TotalLimit:     int64(core.Limit),
	}, nil
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// IsQuotaExhausted reports whether err is an upstream rate-limit or
// abuse-detection rejection
func IsQuotaExhausted(err error) bool {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *gogithub.AbuseRateLimitError
	return errors.As(err, &abuseErr)
}

func userLogin(u *gogithub.User) *string {
	if u == nil || u.Login == nil {
		return nil
	}
	login := u.GetLogin()
	return &login
}

func convertUser(u *gogithub.User) *User {
	return &User{
		Login: userLogin(u),
		Name:  u.GetName(),
		Email: u.GetEmail(),
	}
}

func convertRepo(r *gogithub.Repository) Repo {
	return Repo{
		OwnerLogin: r.GetOwner().GetLogin(),
		OwnerIsOrg: r.GetOwner().GetType() == "Organization",
		Name:       r.GetName(),
		ID:         r.GetID(),
	}
}

func convertIssue(issue *gogithub.Issue) Issue {
	result := Issue{
		ID:            issue.GetID(),
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		Body:          issue.GetBody(),
		HTMLURL:       issue.GetHTMLURL(),
		Closed:        issue.GetState() == "closed",
		PullRequest:   issue.IsPullRequest(),
		CreatedAt:     issue.GetCreatedAt().Time,
		ReporterLogin: userLogin(issue.User),
	}
	if issue.ClosedAt != nil {
		closed := issue.GetClosedAt().Time
		result.ClosedAt = &closed
	}
	for _, assignee := range issue.Assignees {
		// Assignees without a resolvable login are dropped
		if assignee.Login == nil {
			continue
		}
		result.AssigneeLogins = append(result.AssigneeLogins, assignee.GetLogin())
	}
	for _, label := range issue.Labels {
		result.Labels = append(result.Labels, label.GetName())
	}
	return result
}

func convertIssueRef(issue *gogithub.Issue) *IssueRef {
	if issue == nil {
		return nil
	}
	return &IssueRef{
		ID:          issue.GetID(),
		Number:      issue.GetNumber(),
		HTMLURL:     issue.GetHTMLURL(),
		PullRequest: issue.IsPullRequest(),
	}
}

func convertIssueEvent(event *gogithub.IssueEvent) IssueEvent {
	result := IssueEvent{
		Kind:       event.GetEvent(),
		CreatedAt:  event.GetCreatedAt().Time,
		ActorLogin: userLogin(event.Actor),
		Issue:      convertIssueRef(event.Issue),
	}
	if event.Assignee != nil {
		result.AssigneeLogin = userLogin(event.Assignee)
	}
	if event.Assigner != nil {
		result.AssignerLogin = userLogin(event.Assigner)
	}
	if event.Label != nil && event.Label.Name != nil {
		name := event.Label.GetName()
		result.Label = &name
	}
	if event.Rename != nil {
		from, to := event.Rename.GetFrom(), event.Rename.GetTo()
		result.RenameFrom = &from
		result.RenameTo = &to
	}
	return result
}

func convertActivityEvent(event *gogithub.Event) ActivityEvent {
	result := ActivityEvent{
		Kind:       event.GetType(),
		CreatedAt:  event.GetCreatedAt().Time,
		ActorLogin: userLogin(event.Actor),
	}
	if repo := event.GetRepo(); repo != nil {
		// The events API reports the owner-qualified name here
		name := repo.GetName()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		result.RepoName = name
	}
	payload, err := event.ParsePayload()
	if err != nil {
		return result
	}
	switch p := payload.(type) {
	case *gogithub.IssuesEvent:
		result.Issue = convertIssueRef(p.Issue)
	case *gogithub.IssueCommentEvent:
		result.Issue = convertIssueRef(p.Issue)
	}
	return result
}
