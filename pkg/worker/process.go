package worker

import (
	"context"
	"fmt"
	"math"

	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/types"
)

// processOwner resolves an owner's repositories, queues each accepted
// repository for mirroring, and persists the owner's repository list.
// Owners carrying a pre-resolved repository list keep it; org and user
// owners are listed upstream on every pass.
func (p *Pool) processOwner(ctx context.Context, w queue.OwnerWork) error {
	owner := w.Owner
	if !types.AcceptOwner(p.filter, owner) {
		return nil
	}

	log.WithOwner(owner.String()).Info().Msg("Processing owner")

	repos := w.Repos
	if len(repos) == 0 {
		var err error
		if owner.Type == types.OwnerTypeOrg {
			repos, err = p.client.OrgRepositories(ctx, owner.Name)
		} else {
			repos, err = p.client.UserRepositories(ctx, owner.Name)
		}
		if err != nil {
			return fmt.Errorf("failed to list repositories of %s: %w", owner, err)
		}
	}

	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		if !types.AcceptRepo(p.filter, owner, repo.Name) {
			continue
		}
		names = append(names, repo.Name)
		p.queue.AddRepository(queue.RepoWork{Owner: owner, Name: repo.Name, ID: repo.ID})
	}

	if owner.Type == types.OwnerTypeOrg {
		return p.store.PutOrganization(&types.Organization{Name: owner.Name, Repositories: names})
	}
	return p.store.PutUserRepositories(&types.UserRepositories{UserName: owner.Name, RepoNames: names})
}

// processRepo walks every issue of a repository, open and closed,
// queues the accepted ones for mirroring, and persists the repository
// record with the observed issue-number bounds. Pull requests are
// skipped.
func (p *Pool) processRepo(ctx context.Context, w queue.RepoWork) error {
	owner := w.Owner
	if !types.AcceptRepo(p.filter, owner, w.Name) {
		return nil
	}

	log.WithRepo(owner.String(), w.Name).Info().Msg("Processing repository")

	smallest := math.MaxInt
	largest := -1
	err := p.client.Issues(ctx, owner.Name, w.Name, func(issue gh.Issue) error {
		if issue.PullRequest {
			return nil
		}
		if !types.AcceptIssue(p.filter, owner, w.Name, issue.Number) {
			return nil
		}

		if issue.Number < smallest {
			smallest = issue.Number
		}
		if issue.Number > largest {
			largest = issue.Number
		}

		p.queue.AddIssue(queue.IssueWork{Owner: owner, RepoName: w.Name, Number: issue.Number})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk issues of %s/%s: %w", owner.Name, w.Name, err)
	}

	repo := &types.Repository{
		Name:         w.Name,
		RepositoryID: w.ID,
	}
	if largest != -1 {
		repo.FirstIssue = types.IntPtr(smallest)
		repo.LastIssue = types.IntPtr(largest)
	}
	if owner.Type == types.OwnerTypeOrg {
		repo.OrgName = types.StringPtr(owner.Name)
	} else {
		repo.OwnerUserName = types.StringPtr(owner.Name)
	}
	return p.store.PutRepository(repo)
}

// processUser fetches a user account and persists it. Accounts that no
// longer resolve to a login are skipped.
func (p *Pool) processUser(ctx context.Context, w queue.UserWork) error {
	if !types.AcceptUser(p.filter, w.Login) {
		return nil
	}

	log.Logger.Debug().Str("user", w.Login).Msg("Processing user")

	user, err := p.client.User(ctx, w.Login)
	if err != nil {
		return fmt.Errorf("failed to fetch user %s: %w", w.Login, err)
	}
	if user == nil || user.Login == nil {
		return nil
	}

	return p.store.PutUser(&types.User{
		Login: *user.Login,
		Name:  user.Name,
		Email: user.Email,
	})
}
