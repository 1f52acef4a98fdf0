package queue

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/types"
)

// Work is a unit that can be polled from the queue and later marked
// processed. The four implementations are the only kinds the queue
// manages.
type Work interface {
	// key is the structural identity used to deduplicate pending work
	// and to track the active set.
	key() string
}

// OwnerWork asks a worker to resolve and filter the repositories of one
// configured target. An empty Repos means the owner's repositories are
// listed upstream; for owners configured through the individual
// repository list, Repos carries the pre-resolved repositories and no
// listing call is made.
type OwnerWork struct {
	Owner types.Owner
	Repos []gh.Repo
}

func (w OwnerWork) key() string {
	if len(w.Repos) == 0 {
		return "owner:" + w.Owner.String()
	}
	names := make([]string, 0, len(w.Repos))
	for _, r := range w.Repos {
		names = append(names, r.FullName())
	}
	sort.Strings(names)
	return "owner:" + w.Owner.String() + ":" + strings.Join(names, ",")
}

// RepoWork asks a worker to scan one repository's issues
type RepoWork struct {
	Owner types.Owner
	Name  string
	ID    int64
}

func (w RepoWork) key() string {
	return "repo:" + w.Owner.String() + "/" + w.Name
}

// IssueWork asks a worker to mirror one issue
type IssueWork struct {
	Owner    types.Owner
	RepoName string
	Number   int
}

func (w IssueWork) key() string {
	return "issue:" + w.Owner.String() + "/" + w.RepoName + "#" + strconv.Itoa(w.Number)
}

// UserWork asks a worker to mirror one user account
type UserWork struct {
	Login string
}

func (w UserWork) key() string {
	return "user:" + w.Login
}
