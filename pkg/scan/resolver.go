package scan

import (
	"context"
	"fmt"

	"github.com/cuemby/ghmirror/pkg/gh"
)

// resolver caches issue fetches for the duration of one owner scan, so
// an issue referenced by several feeds costs a single upstream request.
// A scan runs on one goroutine; no locking needed.
type resolver struct {
	client gh.Client
	issues map[string]*gh.Issue
}

func newResolver(client gh.Client) *resolver {
	return &resolver{client: client, issues: make(map[string]*gh.Issue)}
}

func (r *resolver) issue(ctx context.Context, owner, repo string, number int) (*gh.Issue, error) {
	key := fmt.Sprintf("%s/%s#%d", owner, repo, number)
	if issue, ok := r.issues[key]; ok {
		return issue, nil
	}
	issue, err := r.client.Issue(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	r.issues[key] = issue
	return issue, nil
}
