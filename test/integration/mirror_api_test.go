package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/ghmirror/pkg/api"
	"github.com/cuemby/ghmirror/pkg/client"
	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/types"
)

// TestMirrorServesClientsWhileScanning tests the full service path: a
// running engine exposed over the read API and driven by the Go client
// a downstream application would use.
func TestMirrorServesClientsWhileScanning(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	reporter := "jgwest"
	fake := gh.NewFake()
	fake.AddOrg("eclipse")
	fake.AddUserAccount(gh.User{Login: &reporter, Name: "Jonathan West"})
	fake.AddRepo("eclipse", "codewind", 144002)
	for number := 5; number <= 8; number++ {
		fake.AddIssue("eclipse", "codewind", gh.Issue{
			ID:            int64(81000 + number),
			Number:        number,
			Title:         fmt.Sprintf("Tracked issue %d", number),
			HTMLURL:       fmt.Sprintf("https://github.com/eclipse/codewind/issues/%d", number),
			CreatedAt:     time.Now().Add(-24 * time.Hour),
			ReporterLogin: &reporter,
		})
	}

	e := startEngine(t, engine.Config{
		Client: fake,
		Orgs:   []string{"eclipse"},
		DBPath: t.TempDir(),
	})

	srv := httptest.NewServer(api.NewServer(e, api.Config{PresharedKey: "integration-key"}).Handler())
	t.Cleanup(srv.Close)

	mirror, err := client.NewClient(srv.URL, "integration-key")
	if err != nil {
		t.Fatalf("Failed to create mirror client: %v", err)
	}
	defer mirror.Close()

	t.Log("Step 1: Checking the health endpoint...")
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to probe health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected health status 200, got %d", resp.StatusCode)
	}
	t.Log("✓ Health endpoint is up")

	t.Log("Step 2: Polling the mirror until the organization appears...")
	deadline := time.Now().Add(90 * time.Second)
	var org *types.Organization
	for time.Now().Before(deadline) {
		current, found, err := mirror.GetOrganization("eclipse")
		if err != nil {
			t.Fatalf("Failed to query the mirror: %v", err)
		}
		if found {
			org = current
			break
		}
		time.Sleep(2 * time.Second)
	}
	if org == nil {
		t.Fatal("Organization never appeared on the mirror")
	}
	t.Logf("✓ Organization mirrored with repositories %v", org.Repositories)

	t.Log("Step 3: Waiting for the scan to settle...")
	waitForDrain(t, e)
	t.Log("✓ Scan settled")

	owner := types.OrgOwner("eclipse")

	t.Log("Step 4: Reading a single issue through the client...")
	issue, found, err := mirror.GetIssue(owner, "codewind", 5)
	if err != nil {
		t.Fatalf("Failed to fetch issue: %v", err)
	}
	if !found || issue == nil {
		t.Fatal("Issue #5 is not served")
	}
	if issue.Title != "Tracked issue 5" {
		t.Errorf("Expected title of issue #5, got %q", issue.Title)
	}
	t.Log("✓ Single issue served")

	t.Log("Step 5: Reading the issue range in bulk...")
	bulk, err := mirror.GetBulkIssuesRange(owner, "codewind", 5, 8)
	if err != nil {
		t.Fatalf("Failed to fetch bulk issues: %v", err)
	}
	if len(bulk.Issues) != 4 {
		t.Errorf("Expected 4 issues in the range, got %d", len(bulk.Issues))
	}
	t.Log("✓ Bulk range served")

	t.Log("Step 6: Tailing the change feed...")
	changes, err := mirror.ResourceChangeEvents(0)
	if err != nil {
		t.Fatalf("Failed to fetch change events: %v", err)
	}
	if len(changes) != 4 {
		t.Errorf("Expected one change event per issue, got %d", len(changes))
	}
	t.Log("✓ Change feed served")

	t.Log("Step 7: Requesting a scan through the admin endpoint...")
	if err := mirror.TriggerFullScan(); err != nil {
		t.Errorf("Full scan request failed: %v", err)
	}
	t.Log("✓ Mirror serves clients end to end")
}
