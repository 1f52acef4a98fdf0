/*
Package gh provides the upstream platform client used by the ingestion
engine.

It wraps the GitHub REST API behind a small interface with
domain-neutral types, so the rest of the codebase never handles API
library values directly and tests can swap in the in-memory Fake.

# Architecture

	┌─────────────────────────────────────────────────┐
	│                  gh.Client                      │
	│   (accounts, repositories, issues, feeds,       │
	│    quota snapshot)                              │
	└─────────────┬──────────────────┬────────────────┘
	              │                  │
	    ┌─────────▼────────┐  ┌──────▼──────┐
	    │   GitHubClient   │  │    Fake     │
	    │  (go-github/v70) │  │ (in-memory) │
	    └─────────┬────────┘  └─────────────┘
	              │
	    ┌─────────▼────────┐
	    │  GitHub REST API │
	    │  (github.com or  │
	    │   enterprise)    │
	    └──────────────────┘

# Core Components

Client:
  - The interface the engine drives
  - Listing methods page through results internally
  - The two feed methods hand whole pages to a callback, so callers can
    pace requests and stop early

GitHubClient:
  - Production implementation on google/go-github
  - Supports github.com and enterprise hosts
  - Basic authentication or personal access token

Fake:
  - In-memory implementation for tests
  - Add helpers build up the upstream state a test needs
  - Intercept hook injects errors per call

QuotaSnapshot:
  - The server's rate-limit state
  - A nil snapshot means the server does not enforce quotas, which
    enterprise installations commonly do not

# Data Conversion

Upstream values are converted to plain structs at the boundary:

  - Issue.Closed is derived from the upstream state string
  - Issue.PullRequest marks issues that are really pull requests; the
    ingestion pipeline skips these
  - Issue.ReporterLogin is nil when the reporting account no longer
    resolves to a login; assignees without a login are dropped
  - IssueEvent carries the optional payload fields (assignee, assigner,
    label, rename) only for the kinds that have them
  - ActivityEvent.Issue is resolved from the event payload for
    issue-related activity kinds and nil otherwise

# Usage

Creating a client and listing a repository's issues:

	client, err := gh.NewClient(gh.Config{
		Server:   "github.com",
		Username: "ci-bot",
		Password: os.Getenv("GH_TOKEN"),
	})
	if err != nil {
		return err
	}

	err = client.Issues(ctx, "jgwest", "rogue-cloud", func(issue gh.Issue) error {
		fmt.Printf("#%d %s\n", issue.Number, issue.Title)
		return nil
	})

Paging through a repository's issue events feed, newest first:

	err = client.RepositoryIssueEvents(ctx, "argoproj-labs", "applicationset",
		func(page []gh.IssueEvent) (bool, error) {
			for _, event := range page {
				fmt.Println(event.Kind, event.CreatedAt)
			}
			return true, nil // false stops paging
		})

Checking the remaining request quota:

	quota, err := client.Quota(ctx)
	if err != nil {
		return err
	}
	if quota == nil {
		fmt.Println("server does not enforce quotas")
	} else {
		fmt.Printf("%d of %d requests remaining\n", quota.Remaining, quota.TotalLimit)
	}

# Important Notes

  - All methods take a context and honor its cancellation
  - IsQuotaExhausted classifies rate-limit and abuse-detection
    rejections, which callers handle by backing off and retrying
  - IsNotFound classifies upstream 404s, which the read API maps to
    absent resources
  - Feed pages are returned newest first, matching the upstream
    ordering the event scanner depends on

# See Also

  - pkg/worker for the processing driven through this client
  - pkg/scan for the feed consumption
  - pkg/queue for request pacing
*/
package gh
