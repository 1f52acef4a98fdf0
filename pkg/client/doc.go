/*
Package client provides a Go client library for the mirror's HTTP API.

The client package wraps the mirror's REST endpoints with a typed,
idiomatic Go interface. It handles authentication, request timeouts,
JSON decoding, and distinguishes absent documents from transport
failures so callers never have to inspect status codes.

# Architecture

The client provides a high-level interface to the mirror API:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                            │
	│  import "github.com/cuemby/ghmirror/pkg/client"            │
	│                                                            │
	│  c, err := client.NewClient("http://mirror:8080", key)     │
	│  repo, found, err := c.GetRepository(owner, "my-repo")     │
	│                                                            │
	└──────────────────┬─────────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                            │
	│  ┌──────────────────────────────────────────────┐          │
	│  │           Client Wrapper                     │          │
	│  │  - Typed per-resource methods                │          │
	│  │  - Authorization header on every request     │          │
	│  │  - 10 second timeout per request             │          │
	│  │  - 404 mapped to found=false                 │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │           net/http Client                    │          │
	│  │  - Connection pooling and reuse              │          │
	│  │  - Optional trust-all TLS transport          │          │
	│  └──────────────────┬───────────────────────────┘          │
	└─────────────────────┼──────────────────────────────────────┘
	                      │ HTTP (port 8080)
	                      ▼
	              Mirror API Server

# Core Features

Lookups:
  - GetOrganization, GetUserRepositories, GetRepository, GetIssue, GetUser
  - Each returns (value, found, err); found=false means the mirror
    does not hold the document, with no error raised

Bulk Issues:
  - GetBulkIssuesRange fetches an inclusive issue number range
  - GetBulkIssuesList fetches named issues, sorted ascending before
    the request so the response order is predictable
  - Issues absent from the mirror are silently skipped

Change Feed:
  - ResourceChangeEvents returns change log entries at or after a
    millisecond timestamp, oldest first
  - Poll with the timestamp of the last seen event to tail the feed

Administration:
  - TriggerFullScan asks the mirror to schedule a full upstream scan

# Usage

Creating a client:

	import "github.com/cuemby/ghmirror/pkg/client"

	c, err := client.NewClient("http://mirror:8080", presharedKey)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

For mirrors behind self-signed certificates:

	c, err := client.NewInsecureClient("https://mirror:8443", presharedKey)

Fetching a repository and its issues:

	owner := types.Owner{Type: types.OwnerTypeOrg, Name: "my-org"}

	repo, found, err := c.GetRepository(owner, "my-repo")
	if err != nil {
		log.Fatal(err)
	}
	if !found {
		fmt.Println("repository not mirrored")
		return
	}

	bulk, err := c.GetBulkIssuesRange(owner, "my-repo", *repo.FirstIssue, *repo.LastIssue)
	for _, issue := range bulk.Issues {
		fmt.Printf("#%d %s\n", issue.Number, issue.Title)
	}

Tailing the change feed:

	since := time.Now().Add(-time.Hour).UnixMilli()
	for {
		events, err := c.ResourceChangeEvents(since)
		if err != nil {
			log.Fatal(err)
		}
		for _, event := range events {
			fmt.Printf("%s/%s #%d changed\n", event.Owner, event.Repo, event.IssueNumber)
			since = event.Time + 1
		}
		time.Sleep(10 * time.Second)
	}

# Error Handling

Lookup methods separate three outcomes:

	value, found, err := c.GetIssue(owner, "my-repo", 42)
	switch {
	case err != nil:
		// Transport failure, bad key, mirror-side error
	case !found:
		// Mirror does not hold this issue
	default:
		// value is populated
	}

A rejected preshared key surfaces as an HTTP 401 error from any
method. The mirror delays the rejection by one second, so a
misconfigured key makes every call slow as well as failing.

# Integration Points

This package integrates with:

  - pkg/api: Consumes the HTTP API
  - pkg/types: Request and response types

# Thread Safety

The client is safe for concurrent use. The wrapper holds no mutable
state and net/http clients support concurrent requests:

	c, _ := client.NewClient("http://mirror:8080", key)

	go func() {
		org, _, _ := c.GetOrganization("my-org")
		_ = org
	}()

	go func() {
		events, _ := c.ResourceChangeEvents(0)
		_ = events
	}()

# Important Notes

  - Each request carries its own 10 second timeout
  - Reuse one client across requests to benefit from connection pooling
  - The preshared key is sent as the Authorization header verbatim,
    with no scheme prefix
  - NewInsecureClient disables certificate verification entirely and
    belongs in development setups only

# See Also

  - pkg/api for the server-side implementation
  - pkg/types for the document types
  - cmd/ghmirror for CLI usage examples
*/
package client
