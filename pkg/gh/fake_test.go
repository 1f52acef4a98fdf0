package gh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_ReposAndIssues(t *testing.T) {
	fake := NewFake()
	fake.AddOrg("microclimate-dev2ops")
	fake.AddRepo("microclimate-dev2ops", "microclimate-vscode-tools", 150116600)
	fake.AddIssue("microclimate-dev2ops", "microclimate-vscode-tools", Issue{
		ID:        419261852,
		Number:    26,
		Title:     "Troubleshooting",
		CreatedAt: time.Now(),
	})

	ctx := context.Background()

	repos, err := fake.OrgRepositories(ctx, "microclimate-dev2ops")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "microclimate-vscode-tools", repos[0].Name)

	issue, err := fake.Issue(ctx, "microclimate-dev2ops", "microclimate-vscode-tools", 26)
	require.NoError(t, err)
	assert.Equal(t, "Troubleshooting", issue.Title)

	_, err = fake.Issue(ctx, "microclimate-dev2ops", "microclimate-vscode-tools", 99)
	assert.Error(t, err)
}

func TestFake_FeedPagingNewestFirst(t *testing.T) {
	fake := NewFake()
	fake.AddRepo("jgwest", "rogue-cloud", 1)
	for i := 0; i < listPageSize+5; i++ {
		fake.AddIssueEvent("jgwest", "rogue-cloud", 1, IssueEvent{
			Kind:      "labeled",
			CreatedAt: time.Unix(int64(i), 0),
		})
	}

	var pages int
	var seen []IssueEvent
	err := fake.RepositoryIssueEvents(context.Background(), "jgwest", "rogue-cloud",
		func(page []IssueEvent) (bool, error) {
			pages++
			seen = append(seen, page...)
			return true, nil
		})
	require.NoError(t, err)

	assert.Equal(t, 2, pages)
	require.Len(t, seen, listPageSize+5)
	// Last added comes back first
	assert.Equal(t, time.Unix(int64(listPageSize+4), 0), seen[0].CreatedAt)
}

func TestFake_FeedStopsWhenCallbackSaysSo(t *testing.T) {
	fake := NewFake()
	for i := 0; i < 3*listPageSize; i++ {
		fake.AddActivity("o", "r", ActivityEvent{Kind: "PushEvent"})
	}

	var pages int
	err := fake.RepositoryActivity(context.Background(), "o", "r",
		func(page []ActivityEvent) (bool, error) {
			pages++
			return false, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestFake_Intercept(t *testing.T) {
	fake := NewFake()
	fake.AddOrg("acme")
	fake.AddRepo("acme", "tools", 7)

	boom := errors.New("boom")
	remaining := 1
	fake.Intercept = func(call string) error {
		if call == "issues acme/tools" && remaining > 0 {
			remaining--
			return boom
		}
		return nil
	}

	collect := func(Issue) error { return nil }

	err := fake.Issues(context.Background(), "acme", "tools", collect)
	assert.ErrorIs(t, err, boom)

	// Second attempt succeeds, as a requeued work unit would
	err = fake.Issues(context.Background(), "acme", "tools", collect)
	assert.NoError(t, err)

	assert.Equal(t, 2, fake.Requests())
}

func TestFake_QuotaCopies(t *testing.T) {
	fake := NewFake()

	quota, err := fake.Quota(context.Background())
	require.NoError(t, err)
	assert.Nil(t, quota)

	fake.SetQuota(&QuotaSnapshot{Remaining: 4000, SecondsToReset: 1200, TotalLimit: 5000})
	quota, err = fake.Quota(context.Background())
	require.NoError(t, err)
	require.NotNil(t, quota)
	quota.Remaining = 0

	again, err := fake.Quota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4000), again.Remaining, "callers must not mutate the fake's state")
}

func TestFake_UserRepositories(t *testing.T) {
	fake := NewFake()
	login := "jgwest"
	fake.AddUserAccount(User{Login: &login, Name: "Jonathan West"})
	fake.AddRepo("jgwest", "rogue-cloud", 150116609)
	fake.AddRepo("someone-else", "other", 9)

	repos, err := fake.UserRepositories(context.Background(), "jgwest")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "rogue-cloud", repos[0].Name)

	for i := 0; i < 3; i++ {
		fake.AddRepo("jgwest", fmt.Sprintf("repo-%d", i), int64(100+i))
	}
	repos, err = fake.UserRepositories(context.Background(), "jgwest")
	require.NoError(t, err)
	assert.Len(t, repos, 4)
}
