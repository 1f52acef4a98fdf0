package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/types"
)

const testKey = "mirror-test-key"

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()

	e, err := engine.New(engine.Config{
		Client: gh.NewFake(),
		DBPath: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)

	s := NewServer(e, Config{PresharedKey: testKey})
	s.authDelay = 5 * time.Millisecond
	return s, e
}

func do(s *Server, method, target, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if key != "" {
		req.Header.Set("Authorization", key)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRequireKey(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name           string
		key            string
		expectedStatus int
	}{
		{
			name:           "missing key is rejected",
			key:            "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong key is rejected",
			key:            "not-the-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "exact key passes",
			key:            testKey,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "comparison ignores case",
			key:            "MIRROR-TEST-KEY",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodGet, "/organization/ghost", tt.key)
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestRequireKey_DelaysRejection(t *testing.T) {
	s, _ := newTestServer(t)
	s.authDelay = 50 * time.Millisecond

	start := time.Now()
	rec := do(s, http.MethodGet, "/organization/acme", "wrong")
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestOrganization(t *testing.T) {
	s, e := newTestServer(t)
	require.NoError(t, e.Store().PutOrganization(&types.Organization{
		Name:         "acme",
		Repositories: []string{"alpha", "beta"},
	}))

	rec := do(s, http.MethodGet, "/organization/acme", testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var org types.Organization
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&org))
	assert.Equal(t, "acme", org.Name)
	assert.Equal(t, []string{"alpha", "beta"}, org.Repositories)

	rec = do(s, http.MethodGet, "/organization/ghost", testKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserRepositories(t *testing.T) {
	s, e := newTestServer(t)
	require.NoError(t, e.Store().PutUserRepositories(&types.UserRepositories{
		UserName:  "jdoe",
		RepoNames: []string{"dotfiles"},
	}))

	rec := do(s, http.MethodGet, "/user-repositories/jdoe", testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var userRepos types.UserRepositories
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&userRepos))
	assert.Equal(t, []string{"dotfiles"}, userRepos.RepoNames)

	rec = do(s, http.MethodGet, "/user-repositories/ghost", testKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepository(t *testing.T) {
	s, e := newTestServer(t)
	require.NoError(t, e.Store().PutRepository(&types.Repository{
		OrgName:      types.StringPtr("acme"),
		Name:         "alpha",
		RepositoryID: 77,
	}))
	require.NoError(t, e.Store().PutRepository(&types.Repository{
		OwnerUserName: types.StringPtr("jdoe"),
		Name:          "dotfiles",
		RepositoryID:  78,
	}))

	tests := []struct {
		name           string
		target         string
		expectedStatus int
		expectedID     int64
	}{
		{
			name:           "organization owned",
			target:         "/repository/org/acme/alpha",
			expectedStatus: http.StatusOK,
			expectedID:     77,
		},
		{
			name:           "user owned",
			target:         "/repository/user/jdoe/dotfiles",
			expectedStatus: http.StatusOK,
			expectedID:     78,
		},
		{
			name:           "unknown owner type",
			target:         "/repository/team/acme/alpha",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "absent repository",
			target:         "/repository/org/acme/ghost",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodGet, tt.target, testKey)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var repo types.Repository
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&repo))
				assert.Equal(t, tt.expectedID, repo.RepositoryID)
			}
		})
	}
}

func TestIssue(t *testing.T) {
	s, e := newTestServer(t)
	require.NoError(t, e.Store().PutIssue(types.OrgOwner("acme"), &types.Issue{
		ParentRepo: "alpha",
		Number:     26,
		Title:      "Crash on startup",
	}))

	rec := do(s, http.MethodGet, "/issue/org/acme/alpha/26", testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var issue types.Issue
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&issue))
	assert.Equal(t, 26, issue.Number)
	assert.Equal(t, "Crash on startup", issue.Title)

	rec = do(s, http.MethodGet, "/issue/org/acme/alpha/99", testKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodGet, "/issue/org/acme/alpha/twenty", testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkIssues(t *testing.T) {
	s, e := newTestServer(t)
	owner := types.OrgOwner("acme")
	for _, number := range []int{3, 4, 7} {
		require.NoError(t, e.Store().PutIssue(owner, &types.Issue{
			ParentRepo: "alpha",
			Number:     number,
			Title:      fmt.Sprintf("issue %d", number),
		}))
	}

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) []int {
		t.Helper()
		var bulk types.BulkIssues
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&bulk))
		numbers := make([]int, 0, len(bulk.Issues))
		for _, issue := range bulk.Issues {
			numbers = append(numbers, issue.Number)
		}
		return numbers
	}

	t.Run("range returns present issues in order", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/bulk/issue/org/acme/alpha?start=1&end=10", testKey)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{3, 4, 7}, decode(t, rec))
	})

	t.Run("issue list follows request order", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/bulk/issue/org/acme/alpha?issueList=7,%203,99", testKey)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{7, 3}, decode(t, rec))
	})

	t.Run("empty range is an empty list", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/bulk/issue/org/acme/alpha?start=100&end=90", testKey)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode(t, rec))
	})

	t.Run("neither selector is a bad request", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/bulk/issue/org/acme/alpha", testKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("start without end is a bad request", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/bulk/issue/org/acme/alpha?start=1", testKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed issue list is a bad request", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/bulk/issue/org/acme/alpha?issueList=seven", testKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUser(t *testing.T) {
	s, e := newTestServer(t)
	require.NoError(t, e.Store().PutUser(&types.User{
		Login: "jdoe",
		Name:  "Jane Doe",
		Email: "jdoe@example.com",
	}))

	rec := do(s, http.MethodGet, "/user/jdoe", testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var user types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "Jane Doe", user.Name)

	rec = do(s, http.MethodGet, "/user/ghost", testKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeEvents(t *testing.T) {
	s, e := newTestServer(t)

	now := time.Now().UnixMilli()
	require.NoError(t, e.Store().AppendChangeEvents([]types.ResourceChangeEvent{
		{Time: now - 3000, UUID: "a", Owner: "acme", Repo: "alpha", IssueNumber: 1},
		{Time: now - 2000, UUID: "b", Owner: "acme", Repo: "alpha", IssueNumber: 2},
		{Time: now - 1000, UUID: "c", Owner: "acme", Repo: "alpha", IssueNumber: 3},
	}))

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) []string {
		t.Helper()
		var events []types.ResourceChangeEvent
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
		uuids := make([]string, 0, len(events))
		for _, event := range events {
			uuids = append(uuids, event.UUID)
		}
		return uuids
	}

	t.Run("since filters and keeps ascending order", func(t *testing.T) {
		rec := do(s, http.MethodGet, fmt.Sprintf("/resourceChangeEvent?since=%d", now-2000), testKey)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"b", "c"}, decode(t, rec))
	})

	t.Run("missing since returns everything", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/resourceChangeEvent", testKey)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"a", "b", "c"}, decode(t, rec))
	})

	t.Run("future since is an empty list", func(t *testing.T) {
		rec := do(s, http.MethodGet, fmt.Sprintf("/resourceChangeEvent?since=%d", now+time.Hour.Milliseconds()), testKey)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode(t, rec))
	})

	t.Run("malformed since is a bad request", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/resourceChangeEvent?since=yesterday", testKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFullScan(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodPost, "/fullScan", testKey)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "scheduled", body["status"])

	rec = do(s, http.MethodGet, "/fullScan", testKey)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProbesBypassKey(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientRateLimit(t *testing.T) {
	_, e := newTestServer(t)
	s := NewServer(e, Config{
		PresharedKey:    testKey,
		ClientRateLimit: 1,
		ClientRateBurst: 1,
	})
	s.authDelay = 5 * time.Millisecond

	rec := do(s, http.MethodGet, "/organization/acme", testKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodGet, "/organization/acme", testKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
