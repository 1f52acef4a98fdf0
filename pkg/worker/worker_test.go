package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/storage"
	"github.com/cuemby/ghmirror/pkg/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestPool(t *testing.T, client gh.Client) (*Pool, *queue.WorkQueue, storage.Store) {
	t.Helper()
	q := queue.NewWorkQueue(queue.Config{})
	store := newTestStore(t)
	pool := NewPool(Config{Queue: q, Store: store, Client: client})
	return pool, q, store
}

// denyFilter rejects the named owners, repos, issues and users and
// accepts everything else. Zero value accepts everything.
type denyFilter struct {
	owners map[string]bool
	repos  map[string]bool
	issues map[int]bool
	users  map[string]bool
	events bool
}

func (f *denyFilter) ProcessOwner(owner types.Owner) bool { return !f.owners[owner.Name] }
func (f *denyFilter) ProcessRepo(_ types.Owner, name string) bool { return !f.repos[name] }
func (f *denyFilter) ProcessIssue(_ types.Owner, _ string, number int) bool {
	return !f.issues[number]
}
func (f *denyFilter) ProcessIssueEvents(types.Owner, string, int) bool { return !f.events }
func (f *denyFilter) ProcessUser(login string) bool                    { return !f.users[login] }

// TestPool_ProcessOwnerOrg tests that an organization owner's
// repositories are listed, queued and persisted.
func TestPool_ProcessOwnerOrg(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)
	fake.AddRepo("microclimate-dev", "microclimate-docs", 102)

	pool, q, store := newTestPool(t, fake)

	err := pool.processOwner(context.Background(), queue.OwnerWork{Owner: types.OrgOwner("microclimate-dev")})
	require.NoError(t, err)

	org, err := store.GetOrganization("microclimate-dev")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.ElementsMatch(t, []string{"microclimate", "microclimate-docs"}, org.Repositories)

	assert.Equal(t, 2, q.AvailableWork())
}

// TestPool_ProcessOwnerUser tests that a user owner's repositories are
// persisted as a user repository list.
func TestPool_ProcessOwnerUser(t *testing.T) {
	fake := gh.NewFake()
	fake.AddUserAccount(gh.User{Login: types.StringPtr("jgwest")})
	fake.AddRepo("jgwest", "rogue-cloud", 201)

	pool, q, store := newTestPool(t, fake)

	err := pool.processOwner(context.Background(), queue.OwnerWork{Owner: types.UserOwner("jgwest")})
	require.NoError(t, err)

	userRepos, err := store.GetUserRepositories("jgwest")
	require.NoError(t, err)
	require.NotNil(t, userRepos)
	assert.Equal(t, []string{"rogue-cloud"}, userRepos.RepoNames)

	assert.Equal(t, 1, q.AvailableWork())
}

// TestPool_ProcessOwnerWithResolvedRepos tests that an owner carrying a
// pre-resolved repository list is mirrored without an upstream listing
// call and only covers the listed repositories.
func TestPool_ProcessOwnerWithResolvedRepos(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("argoproj-labs")
	fake.AddRepo("argoproj-labs", "applicationset", 301)
	fake.AddRepo("argoproj-labs", "argocd-notifications", 302)

	pool, q, store := newTestPool(t, fake)

	w := queue.OwnerWork{
		Owner: types.OrgOwner("argoproj-labs"),
		Repos: []gh.Repo{{OwnerLogin: "argoproj-labs", OwnerIsOrg: true, Name: "applicationset", ID: 301}},
	}
	require.NoError(t, pool.processOwner(context.Background(), w))

	org, err := store.GetOrganization("argoproj-labs")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, []string{"applicationset"}, org.Repositories)

	assert.Equal(t, 0, fake.Requests())
	assert.Equal(t, 1, q.AvailableWork())
}

// TestPool_ProcessOwnerFiltered tests that a rejected owner writes
// nothing and queues nothing.
func TestPool_ProcessOwnerFiltered(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)

	q := queue.NewWorkQueue(queue.Config{})
	store := newTestStore(t)
	pool := NewPool(Config{
		Queue:  q,
		Store:  store,
		Client: fake,
		Filter: &denyFilter{owners: map[string]bool{"microclimate-dev": true}},
	})

	err := pool.processOwner(context.Background(), queue.OwnerWork{Owner: types.OrgOwner("microclimate-dev")})
	require.NoError(t, err)

	org, err := store.GetOrganization("microclimate-dev")
	require.NoError(t, err)
	assert.Nil(t, org)
	assert.Equal(t, 0, q.AvailableWork())
	assert.Equal(t, 0, fake.Requests())
}

// TestPool_ProcessOwnerSkipsFilteredRepos tests that rejected
// repositories are left out of both the queue and the persisted list.
func TestPool_ProcessOwnerSkipsFilteredRepos(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)
	fake.AddRepo("microclimate-dev", "microclimate-docs", 102)

	q := queue.NewWorkQueue(queue.Config{})
	store := newTestStore(t)
	pool := NewPool(Config{
		Queue:  q,
		Store:  store,
		Client: fake,
		Filter: &denyFilter{repos: map[string]bool{"microclimate-docs": true}},
	})

	err := pool.processOwner(context.Background(), queue.OwnerWork{Owner: types.OrgOwner("microclimate-dev")})
	require.NoError(t, err)

	org, err := store.GetOrganization("microclimate-dev")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, []string{"microclimate"}, org.Repositories)
	assert.Equal(t, 1, q.AvailableWork())
}

// TestPool_ProcessRepo tests that a repository scan queues its issues,
// skips pull requests, and persists the issue-number bounds.
func TestPool_ProcessRepo(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)
	fake.AddIssue("microclimate-dev", "microclimate", gh.Issue{Number: 8, Title: "First"})
	fake.AddIssue("microclimate-dev", "microclimate", gh.Issue{Number: 26, Title: "Latest"})
	fake.AddIssue("microclimate-dev", "microclimate", gh.Issue{Number: 30, PullRequest: true})

	pool, q, store := newTestPool(t, fake)

	err := pool.processRepo(context.Background(), queue.RepoWork{
		Owner: types.OrgOwner("microclimate-dev"),
		Name:  "microclimate",
		ID:    101,
	})
	require.NoError(t, err)

	repo, err := store.GetRepository(types.OrgOwner("microclimate-dev"), "microclimate")
	require.NoError(t, err)
	require.NotNil(t, repo)
	require.NotNil(t, repo.FirstIssue)
	require.NotNil(t, repo.LastIssue)
	assert.Equal(t, 8, *repo.FirstIssue)
	assert.Equal(t, 26, *repo.LastIssue)
	assert.Equal(t, int64(101), repo.RepositoryID)
	require.NotNil(t, repo.OrgName)
	assert.Equal(t, "microclimate-dev", *repo.OrgName)
	assert.Nil(t, repo.OwnerUserName)

	// The pull request was not queued
	assert.Equal(t, 2, q.AvailableWork())
}

// TestPool_ProcessRepoWithoutIssues tests that a repository with no
// issues persists null bounds.
func TestPool_ProcessRepoWithoutIssues(t *testing.T) {
	fake := gh.NewFake()
	fake.AddUserAccount(gh.User{Login: types.StringPtr("jgwest")})
	fake.AddRepo("jgwest", "rogue-cloud", 201)

	pool, _, store := newTestPool(t, fake)

	err := pool.processRepo(context.Background(), queue.RepoWork{
		Owner: types.UserOwner("jgwest"),
		Name:  "rogue-cloud",
		ID:    201,
	})
	require.NoError(t, err)

	repo, err := store.GetRepository(types.UserOwner("jgwest"), "rogue-cloud")
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Nil(t, repo.FirstIssue)
	assert.Nil(t, repo.LastIssue)
	require.NotNil(t, repo.OwnerUserName)
	assert.Equal(t, "jgwest", *repo.OwnerUserName)
	assert.Nil(t, repo.OrgName)
}

// TestPool_ProcessRepoFilteredIssues tests that rejected issues are
// excluded from the bounds and never queued.
func TestPool_ProcessRepoFilteredIssues(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)
	fake.AddIssue("microclimate-dev", "microclimate", gh.Issue{Number: 8})
	fake.AddIssue("microclimate-dev", "microclimate", gh.Issue{Number: 26})

	q := queue.NewWorkQueue(queue.Config{})
	store := newTestStore(t)
	pool := NewPool(Config{
		Queue:  q,
		Store:  store,
		Client: fake,
		Filter: &denyFilter{issues: map[int]bool{26: true}},
	})

	err := pool.processRepo(context.Background(), queue.RepoWork{
		Owner: types.OrgOwner("microclimate-dev"),
		Name:  "microclimate",
		ID:    101,
	})
	require.NoError(t, err)

	repo, err := store.GetRepository(types.OrgOwner("microclimate-dev"), "microclimate")
	require.NoError(t, err)
	require.NotNil(t, repo)
	require.NotNil(t, repo.LastIssue)
	assert.Equal(t, 8, *repo.FirstIssue)
	assert.Equal(t, 8, *repo.LastIssue)
	assert.Equal(t, 1, q.AvailableWork())
}

// TestPool_ProcessUser tests that a user account is fetched and
// persisted.
func TestPool_ProcessUser(t *testing.T) {
	fake := gh.NewFake()
	fake.AddUserAccount(gh.User{
		Login: types.StringPtr("chetan-rns"),
		Name:  "Chetan",
		Email: "chetan@example.com",
	})

	pool, _, store := newTestPool(t, fake)

	err := pool.processUser(context.Background(), queue.UserWork{Login: "chetan-rns"})
	require.NoError(t, err)

	user, err := store.GetUser("chetan-rns")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "chetan-rns", user.Login)
	assert.Equal(t, "Chetan", user.Name)
	assert.Equal(t, "chetan@example.com", user.Email)
}

// TestPool_ProcessUserFiltered tests that a rejected user is neither
// fetched nor persisted.
func TestPool_ProcessUserFiltered(t *testing.T) {
	fake := gh.NewFake()
	fake.AddUserAccount(gh.User{Login: types.StringPtr("chetan-rns")})

	q := queue.NewWorkQueue(queue.Config{})
	store := newTestStore(t)
	pool := NewPool(Config{
		Queue:  q,
		Store:  store,
		Client: fake,
		Filter: &denyFilter{users: map[string]bool{"chetan-rns": true}},
	})

	err := pool.processUser(context.Background(), queue.UserWork{Login: "chetan-rns"})
	require.NoError(t, err)

	user, err := store.GetUser("chetan-rns")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Equal(t, 0, fake.Requests())
}

// TestPool_ProcessUserFetchError tests that an upstream failure
// surfaces as an error so the unit is retried.
func TestPool_ProcessUserFetchError(t *testing.T) {
	pool, _, _ := newTestPool(t, gh.NewFake())

	err := pool.processUser(context.Background(), queue.UserWork{Login: "gone"})
	require.Error(t, err)
}

// TestPool_RunDrainsQueue tests the full cascade from a single owner
// unit down to issues and users through running workers.
func TestPool_RunDrainsQueue(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)
	fake.AddUserAccount(gh.User{Login: types.StringPtr("jgwest"), Name: "Jonathan"})
	fake.AddIssue("microclimate-dev", "microclimate", gh.Issue{
		Number:        26,
		Title:         "Portal issue",
		ReporterLogin: types.StringPtr("jgwest"),
		CreatedAt:     time.Date(2019, 3, 8, 12, 0, 0, 0, time.UTC),
	})

	pool, q, store := newTestPool(t, fake)

	q.AddOwner(queue.OwnerWork{Owner: types.OrgOwner("microclimate-dev")})

	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q.WaitForQuiet(ctx, 200*time.Millisecond)

	org, err := store.GetOrganization("microclimate-dev")
	require.NoError(t, err)
	require.NotNil(t, org)

	issue, err := store.GetIssue(types.OrgOwner("microclimate-dev"), "microclimate", 26)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, "Portal issue", issue.Title)

	user, err := store.GetUser("jgwest")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Jonathan", user.Name)

	changes, err := store.RecentChangeEvents(0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 26, changes[0].IssueNumber)
}

// TestPool_RetriesFailedUnits tests that a unit failing once is
// requeued and completes on the retry.
func TestPool_RetriesFailedUnits(t *testing.T) {
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev")
	fake.AddRepo("microclimate-dev", "microclimate", 101)

	var failed atomic.Bool
	fake.Intercept = func(call string) error {
		if call == "issues microclimate-dev/microclimate" && failed.CompareAndSwap(false, true) {
			return errors.New("upstream hiccup")
		}
		return nil
	}

	pool, q, store := newTestPool(t, fake)

	q.AddRepository(queue.RepoWork{Owner: types.OrgOwner("microclimate-dev"), Name: "microclimate", ID: 101})

	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q.WaitForQuiet(ctx, 200*time.Millisecond)

	repo, err := store.GetRepository(types.OrgOwner("microclimate-dev"), "microclimate")
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.True(t, failed.Load())
}
