package integration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/events"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/types"
)

// These tests run a complete engine against the in-memory upstream fake
// and wait for real scheduler ticks, which fire every 20 seconds.
// Expect each test to take half a minute or more; -short skips them.

// TestFullScanMirrorsOrganization tests the cold-start path for an
// organization target: the first tick begins a full scan, and after the
// queue drains the store holds the organization, its repository, the
// issue and the reporter's user record.
func TestFullScanMirrorsOrganization(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	reporter := "jgwest"
	fake := gh.NewFake()
	fake.AddOrg("microclimate-dev2ops")
	fake.AddUserAccount(gh.User{Login: &reporter, Name: "Jonathan West"})
	fake.AddRepo("microclimate-dev2ops", "microclimate-vscode-tools", 128503)
	fake.AddIssue("microclimate-dev2ops", "microclimate-vscode-tools", gh.Issue{
		ID:            260001,
		Number:        26,
		Title:         "Document the default connection settings",
		Body:          "Document it in the README before the next release.",
		HTMLURL:       "https://github.com/microclimate-dev2ops/microclimate-vscode-tools/issues/26",
		CreatedAt:     time.Now().Add(-48 * time.Hour),
		ReporterLogin: &reporter,
	})

	e := startEngine(t, engine.Config{
		Client: fake,
		Orgs:   []string{"microclimate-dev2ops"},
		DBPath: t.TempDir(),
	})

	t.Log("Step 1: Waiting for the scheduler to begin the initial full scan...")
	waitForFullScanStart(t, e)
	t.Log("✓ Full scan started")

	t.Log("Step 2: Waiting for the work queue to drain...")
	waitForDrain(t, e)
	t.Log("✓ Work queue drained")

	store := e.Store()
	owner := types.OrgOwner("microclimate-dev2ops")

	t.Log("Step 3: Checking the organization record...")
	org, err := store.GetOrganization("microclimate-dev2ops")
	if err != nil {
		t.Fatalf("Failed to read organization: %v", err)
	}
	if org == nil {
		t.Fatal("Organization was not mirrored")
	}
	if len(org.Repositories) != 1 || org.Repositories[0] != "microclimate-vscode-tools" {
		t.Errorf("Expected repository list [microclimate-vscode-tools], got %v", org.Repositories)
	}
	t.Log("✓ Organization lists its repository")

	t.Log("Step 4: Checking the repository record...")
	repo, err := store.GetRepository(owner, "microclimate-vscode-tools")
	if err != nil {
		t.Fatalf("Failed to read repository: %v", err)
	}
	if repo == nil {
		t.Fatal("Repository was not mirrored")
	}
	if repo.RepositoryID != 128503 {
		t.Errorf("Expected repository id 128503, got %d", repo.RepositoryID)
	}
	if repo.FirstIssue == nil || *repo.FirstIssue != 26 || repo.LastIssue == nil || *repo.LastIssue != 26 {
		t.Errorf("Expected issue bounds [26, 26], got %v and %v", repo.FirstIssue, repo.LastIssue)
	}
	t.Log("✓ Repository record carries the issue bounds")

	t.Log("Step 5: Checking the mirrored issue...")
	issue, err := store.GetIssue(owner, "microclimate-vscode-tools", 26)
	if err != nil {
		t.Fatalf("Failed to read issue: %v", err)
	}
	if issue == nil {
		t.Fatal("Issue #26 was not mirrored")
	}
	if !strings.Contains(issue.Body, "Document it") {
		t.Errorf("Expected the issue body to carry the request, got %q", issue.Body)
	}
	if issue.Reporter != "jgwest" {
		t.Errorf("Expected reporter jgwest, got %q", issue.Reporter)
	}
	t.Log("✓ Issue #26 mirrored")

	t.Log("Step 6: Checking the reporter's user record...")
	user, err := store.GetUser("jgwest")
	if err != nil {
		t.Fatalf("Failed to read user: %v", err)
	}
	if user == nil {
		t.Fatal("Reporter was not mirrored")
	}
	if user.Name != "Jonathan West" {
		t.Errorf("Expected user name Jonathan West, got %q", user.Name)
	}
	t.Log("✓ Reporter mirrored")

	t.Log("Step 7: Checking the change event feed...")
	changes, err := store.RecentChangeEvents(0)
	if err != nil {
		t.Fatalf("Failed to read change events: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("Expected exactly one change event, got %d", len(changes))
	}
	change := changes[0]
	if change.Owner != "microclimate-dev2ops" || change.Repo != "microclimate-vscode-tools" || change.IssueNumber != 26 {
		t.Errorf("Unexpected change event %+v", change)
	}
	if change.UUID == "" || change.Time == 0 {
		t.Errorf("Change event is missing its identity, got %+v", change)
	}
	t.Log("✓ Exactly one change event recorded")

	t.Log("✅ All steps completed successfully!")
}

// TestFullScanMirrorsUserRepositories tests the cold-start path for a
// user-account target, and that no issue records exist outside the
// observed number bounds.
func TestFullScanMirrorsUserRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	login := "jgwest"
	fake := gh.NewFake()
	fake.AddUserAccount(gh.User{Login: &login, Name: "Jonathan West"})
	fake.AddRepo("jgwest", "rogue-cloud", 155092)
	fake.AddIssue("jgwest", "rogue-cloud", gh.Issue{
		ID:            40003,
		Number:        3,
		Title:         "Agent disconnects after idling",
		HTMLURL:       "https://github.com/jgwest/rogue-cloud/issues/3",
		CreatedAt:     time.Now().Add(-72 * time.Hour),
		ReporterLogin: &login,
	})
	fake.AddIssue("jgwest", "rogue-cloud", gh.Issue{
		ID:            40007,
		Number:        7,
		Title:         "World map tiles render black",
		HTMLURL:       "https://github.com/jgwest/rogue-cloud/issues/7",
		CreatedAt:     time.Now().Add(-24 * time.Hour),
		ReporterLogin: &login,
	})

	e := startEngine(t, engine.Config{
		Client: fake,
		Users:  []string{"jgwest"},
		DBPath: t.TempDir(),
	})

	t.Log("Step 1: Waiting for the initial full scan to drain...")
	waitForFullScanStart(t, e)
	waitForDrain(t, e)
	t.Log("✓ Full scan drained")

	store := e.Store()
	owner := types.UserOwner("jgwest")

	t.Log("Step 2: Checking the user repository list...")
	userRepos, err := store.GetUserRepositories("jgwest")
	if err != nil {
		t.Fatalf("Failed to read user repositories: %v", err)
	}
	if userRepos == nil {
		t.Fatal("User repository list was not mirrored")
	}
	if len(userRepos.RepoNames) != 1 || userRepos.RepoNames[0] != "rogue-cloud" {
		t.Errorf("Expected repository list [rogue-cloud], got %v", userRepos.RepoNames)
	}
	t.Log("✓ User repository list mirrored")

	t.Log("Step 3: Checking the repository record...")
	repo, err := store.GetRepository(owner, "rogue-cloud")
	if err != nil {
		t.Fatalf("Failed to read repository: %v", err)
	}
	if repo == nil {
		t.Fatal("Repository was not mirrored")
	}
	if repo.OwnerUserName == nil || *repo.OwnerUserName != "jgwest" {
		t.Errorf("Expected a user-owned repository record, got %+v", repo)
	}
	if repo.FirstIssue == nil || *repo.FirstIssue != 3 || repo.LastIssue == nil || *repo.LastIssue != 7 {
		t.Errorf("Expected issue bounds [3, 7], got %v and %v", repo.FirstIssue, repo.LastIssue)
	}
	t.Log("✓ Repository record carries the issue bounds")

	t.Log("Step 4: Checking the mirrored issues...")
	for _, number := range []int{3, 7} {
		issue, err := store.GetIssue(owner, "rogue-cloud", number)
		if err != nil {
			t.Fatalf("Failed to read issue #%d: %v", number, err)
		}
		if issue == nil {
			t.Errorf("Issue #%d was not mirrored", number)
		}
	}
	t.Log("✓ Issues inside the bounds mirrored")

	t.Log("Step 5: Checking numbers outside the bounds...")
	for _, number := range []int{1, 2, 8, 1000} {
		issue, err := store.GetIssue(owner, "rogue-cloud", number)
		if err != nil {
			t.Fatalf("Failed to read issue #%d: %v", number, err)
		}
		if issue != nil {
			t.Errorf("Expected no record for issue #%d, got %+v", number, issue)
		}
	}
	t.Log("✓ No records outside the bounds")
}

// TestRestartAfterTargetChangeRebuildsStore tests a restart with a
// reduced target set: reconciliation moves the prior store contents
// into old/ and the next full scan covers only the remaining targets.
func TestRestartAfterTargetChangeRebuildsStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	login := "jgwest"
	fake := gh.NewFake()
	fake.AddOrg("eclipse")
	fake.AddUserAccount(gh.User{Login: &login})
	fake.AddRepo("eclipse", "codewind", 144002)
	fake.AddIssue("eclipse", "codewind", gh.Issue{
		ID:            81001,
		Number:        81,
		Title:         "Project sync loops on Windows",
		HTMLURL:       "https://github.com/eclipse/codewind/issues/81",
		CreatedAt:     time.Now().Add(-24 * time.Hour),
		ReporterLogin: &login,
	})
	fake.AddRepo("jgwest", "rogue-cloud", 155092)
	fake.AddIssue("jgwest", "rogue-cloud", gh.Issue{
		ID:            40004,
		Number:        4,
		Title:         "Leaderboard resets on restart",
		HTMLURL:       "https://github.com/jgwest/rogue-cloud/issues/4",
		CreatedAt:     time.Now().Add(-24 * time.Hour),
		ReporterLogin: &login,
	})

	dbPath := t.TempDir()

	t.Log("Step 1: Running the first engine with both targets...")
	first, err := engine.New(engine.Config{
		Client:          fake,
		Orgs:            []string{"eclipse"},
		IndividualRepos: []engine.IndividualRepo{{Name: "jgwest/rogue-cloud"}},
		DBPath:          dbPath,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	if err := first.Start(firstCtx); err != nil {
		cancelFirst()
		t.Fatalf("Failed to start engine: %v", err)
	}
	waitForFullScanStart(t, first)
	waitForDrain(t, first)
	if repo, err := first.Store().GetRepository(types.UserOwner("jgwest"), "rogue-cloud"); err != nil || repo == nil {
		t.Fatalf("Expected rogue-cloud to be mirrored before the restart, got %v, %v", repo, err)
	}
	first.Stop()
	cancelFirst()
	t.Log("✓ First run mirrored both targets")

	t.Log("Step 2: Restarting without the individual repository...")
	second, err := engine.New(engine.Config{
		Client: fake,
		Orgs:   []string{"eclipse"},
		DBPath: dbPath,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if second.Store().IsInitialized() {
		t.Error("Expected the store to be uninitialized after the target change")
	}
	if repo, err := second.Store().GetRepository(types.UserOwner("jgwest"), "rogue-cloud"); err != nil || repo != nil {
		t.Errorf("Expected the dropped repository to be gone after reconciliation, got %v, %v", repo, err)
	}
	moved, err := filepath.Glob(filepath.Join(dbPath, "old", "*.old.*"))
	if err != nil {
		t.Fatalf("Failed to list moved store contents: %v", err)
	}
	if len(moved) == 0 {
		t.Fatal("Expected the prior store contents under old/")
	}
	movedUserDir := false
	for _, entry := range moved {
		if strings.HasPrefix(filepath.Base(entry), "jgwest.old.") {
			movedUserDir = true
		}
	}
	if !movedUserDir {
		t.Errorf("Expected the jgwest directory among the moved entries, got %v", moved)
	}
	t.Log("✓ Prior contents moved aside")

	t.Log("Step 3: Waiting for the rescan of the reduced target set...")
	secondCtx, cancelSecond := context.WithCancel(context.Background())
	if err := second.Start(secondCtx); err != nil {
		cancelSecond()
		t.Fatalf("Failed to start engine: %v", err)
	}
	t.Cleanup(func() {
		second.Stop()
		cancelSecond()
	})
	waitForFullScanStart(t, second)
	waitForDrain(t, second)

	org, err := second.Store().GetOrganization("eclipse")
	if err != nil {
		t.Fatalf("Failed to read organization: %v", err)
	}
	if org == nil {
		t.Fatal("Organization was not mirrored on the rescan")
	}
	issue, err := second.Store().GetIssue(types.OrgOwner("eclipse"), "codewind", 81)
	if err != nil || issue == nil {
		t.Fatalf("Expected issue #81 after the rescan, got %v, %v", issue, err)
	}
	if userRepos, err := second.Store().GetUserRepositories("jgwest"); err != nil || userRepos != nil {
		t.Errorf("Expected no user repository list for the dropped owner, got %v, %v", userRepos, err)
	}
	if repo, err := second.Store().GetRepository(types.UserOwner("jgwest"), "rogue-cloud"); err != nil || repo != nil {
		t.Errorf("Expected the dropped repository to stay gone, got %v, %v", repo, err)
	}
	t.Log("✓ Rescan covered only the remaining target")
}

// startEngine builds and starts an engine for cfg, stopping it when the
// test finishes
func startEngine(t *testing.T, cfg engine.Config) *engine.Engine {
	t.Helper()

	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Failed to start engine: %v", err)
	}
	t.Cleanup(func() {
		e.Stop()
		cancel()
	})
	return e
}

// waitForFullScanStart blocks until the scheduler announces a full
// scan. The first tick fires 20 seconds after startup, which makes this
// the slow part of every test here.
func waitForFullScanStart(t *testing.T, e *engine.Engine) {
	t.Helper()

	sub := e.Broker().Subscribe()
	defer e.Broker().Unsubscribe(sub)

	timeout := time.After(90 * time.Second)
	for {
		select {
		case event := <-sub:
			if event.Type == events.EventFullScanStarted {
				return
			}
		case <-timeout:
			t.Fatal("Timed out waiting for the full scan to start")
		}
	}
}

// waitForDrain blocks until the work queue has stayed empty for a
// while, meaning the current scan's writes have all landed
func waitForDrain(t *testing.T, e *engine.Engine) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	e.Queue().WaitForQuiet(ctx, 2*time.Second)
	if e.Queue().AvailableWork()+e.Queue().ActiveResources() != 0 {
		t.Fatal("Work queue did not drain")
	}
}
