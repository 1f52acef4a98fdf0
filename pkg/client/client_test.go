package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ghmirror/pkg/api"
	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/types"
)

const testKey = "mirror-test-key"

// newTestMirror spins up a real mirror API over an empty store and
// returns a client pointed at it
func newTestMirror(t *testing.T) (*Client, *engine.Engine) {
	t.Helper()

	e, err := engine.New(engine.Config{
		Client: gh.NewFake(),
		DBPath: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)

	server := httptest.NewServer(api.NewServer(e, api.Config{PresharedKey: testKey}).Handler())
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, testKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, e
}

func issueNumbers(bulk *types.BulkIssues) []int {
	numbers := make([]int, 0, len(bulk.Issues))
	for _, issue := range bulk.Issues {
		numbers = append(numbers, issue.Number)
	}
	return numbers
}

func TestNewClientValidatesURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{
			name:        "http is accepted",
			url:         "http://mirror.example.com:8080",
			expectError: false,
		},
		{
			name:        "https is accepted",
			url:         "https://mirror.example.com",
			expectError: false,
		},
		{
			name:        "missing scheme is rejected",
			url:         "mirror.example.com:8080",
			expectError: true,
		},
		{
			name:        "other schemes are rejected",
			url:         "ftp://mirror.example.com",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.url, testKey)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, c.Close())
		})
	}
}

func TestNewClientTrimsTrailingSlashes(t *testing.T) {
	c, err := NewClient("http://mirror.example.com/", testKey)
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.example.com", c.baseURL)
}

func TestGetOrganization(t *testing.T) {
	c, e := newTestMirror(t)
	require.NoError(t, e.Store().PutOrganization(&types.Organization{
		Name:         "acme",
		Repositories: []string{"alpha", "beta"},
	}))

	org, found, err := c.GetOrganization("acme")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "acme", org.Name)
	assert.Equal(t, []string{"alpha", "beta"}, org.Repositories)

	org, found, err = c.GetOrganization("ghost")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, org)
}

func TestGetUserRepositories(t *testing.T) {
	c, e := newTestMirror(t)
	require.NoError(t, e.Store().PutUserRepositories(&types.UserRepositories{
		UserName:  "jdoe",
		RepoNames: []string{"dotfiles"},
	}))

	userRepos, found, err := c.GetUserRepositories("jdoe")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"dotfiles"}, userRepos.RepoNames)

	_, found, err = c.GetUserRepositories("ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetRepository(t *testing.T) {
	c, e := newTestMirror(t)
	require.NoError(t, e.Store().PutRepository(&types.Repository{
		OrgName:      types.StringPtr("acme"),
		Name:         "alpha",
		RepositoryID: 77,
	}))

	repo, found, err := c.GetRepository(types.OrgOwner("acme"), "alpha")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(77), repo.RepositoryID)

	_, found, err = c.GetRepository(types.OrgOwner("acme"), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetIssue(t *testing.T) {
	c, e := newTestMirror(t)
	owner := types.OrgOwner("acme")
	require.NoError(t, e.Store().PutIssue(owner, &types.Issue{
		ParentRepo: "alpha",
		Number:     26,
		Title:      "Crash on startup",
	}))

	issue, found, err := c.GetIssue(owner, "alpha", 26)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 26, issue.Number)
	assert.Equal(t, "Crash on startup", issue.Title)

	_, found, err = c.GetIssue(owner, "alpha", 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetUser(t *testing.T) {
	c, e := newTestMirror(t)
	require.NoError(t, e.Store().PutUser(&types.User{
		Login: "jdoe",
		Name:  "Jane Doe",
		Email: "jdoe@example.com",
	}))

	user, found, err := c.GetUser("jdoe")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Jane Doe", user.Name)

	_, found, err = c.GetUser("ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetBulkIssuesRange(t *testing.T) {
	c, e := newTestMirror(t)
	owner := types.OrgOwner("acme")
	for _, number := range []int{3, 4, 7} {
		require.NoError(t, e.Store().PutIssue(owner, &types.Issue{
			ParentRepo: "alpha",
			Number:     number,
			Title:      fmt.Sprintf("issue %d", number),
		}))
	}

	bulk, err := c.GetBulkIssuesRange(owner, "alpha", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 7}, issueNumbers(bulk))

	bulk, err = c.GetBulkIssuesRange(owner, "ghost", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, bulk.Issues)
}

func TestGetBulkIssuesList(t *testing.T) {
	c, e := newTestMirror(t)
	owner := types.OrgOwner("acme")
	for _, number := range []int{3, 4, 7} {
		require.NoError(t, e.Store().PutIssue(owner, &types.Issue{
			ParentRepo: "alpha",
			Number:     number,
		}))
	}

	numbers := []int{7, 99, 3}
	bulk, err := c.GetBulkIssuesList(owner, "alpha", numbers)
	require.NoError(t, err)

	// The client sorts the request, so present issues come back ascending
	assert.Equal(t, []int{3, 7}, issueNumbers(bulk))
	assert.Equal(t, []int{7, 99, 3}, numbers, "caller's slice must not be reordered")
}

func TestResourceChangeEvents(t *testing.T) {
	c, e := newTestMirror(t)

	now := time.Now().UnixMilli()
	require.NoError(t, e.Store().AppendChangeEvents([]types.ResourceChangeEvent{
		{Time: now - 3000, UUID: "a", Owner: "acme", Repo: "alpha", IssueNumber: 1},
		{Time: now - 2000, UUID: "b", Owner: "acme", Repo: "alpha", IssueNumber: 2},
		{Time: now - 1000, UUID: "c", Owner: "acme", Repo: "alpha", IssueNumber: 3},
	}))

	events, err := c.ResourceChangeEvents(now - 2000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].UUID)
	assert.Equal(t, "c", events[1].UUID)

	events, err = c.ResourceChangeEvents(0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestTriggerFullScan(t *testing.T) {
	c, _ := newTestMirror(t)
	assert.NoError(t, c.TriggerFullScan())
}

func TestAuthorizationHeader(t *testing.T) {
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, testKey)
	require.NoError(t, err)

	_, found, err := c.GetUser("jdoe")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, testKey, header, "preshared key must be sent verbatim")
}

func TestRequestFailureSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid preshared key", http.StatusUnauthorized)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "wrong-key")
	require.NoError(t, err)

	_, _, err = c.GetOrganization("acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Contains(t, err.Error(), "invalid preshared key")
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	c, err := NewClient(server.URL, testKey)
	require.NoError(t, err)

	_, _, err = c.GetOrganization("acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse mirror response")
}
