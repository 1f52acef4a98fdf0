package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/ghmirror/pkg/events"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/jsonutil"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/types"
)

// processIssue mirrors a single issue: the resource itself, its
// comments and its event log. The issue's reporter and assignees are
// queued for mirroring as users. When the mirrored document differs
// from the previously stored version, a resource change event is
// recorded.
func (p *Pool) processIssue(ctx context.Context, w queue.IssueWork) error {
	owner := w.Owner
	if !types.AcceptIssue(p.filter, owner, w.RepoName, w.Number) {
		return nil
	}

	logger := log.WithRepo(owner.String(), w.RepoName)
	logger.Info().Int("issue", w.Number).Msg("Processing issue")

	fetched, err := p.client.Issue(ctx, owner.Name, w.RepoName, w.Number)
	if err != nil {
		return fmt.Errorf("failed to fetch issue %s/%s#%d: %w", owner.Name, w.RepoName, w.Number, err)
	}

	// Event scans can queue a number that resolves to a pull request;
	// pull requests are never mirrored.
	if fetched.PullRequest {
		return nil
	}

	reporter := sanitizeLogin(fetched.ReporterLogin)
	if types.AcceptUser(p.filter, reporter) && fetched.ReporterLogin != nil {
		p.queue.AddUser(reporter)
	}

	issue := &types.Issue{
		ParentRepo:  w.RepoName,
		CreatedAt:   fetched.CreatedAt.UnixMilli(),
		Labels:      fetched.Labels,
		Title:       fetched.Title,
		HTMLURL:     fetched.HTMLURL,
		Number:      fetched.Number,
		Body:        fetched.Body,
		PullRequest: fetched.PullRequest,
		Closed:      fetched.Closed,
		Reporter:    reporter,
	}
	if fetched.ClosedAt != nil {
		issue.ClosedAt = types.Int64Ptr(fetched.ClosedAt.UnixMilli())
	}

	for _, login := range fetched.AssigneeLogins {
		issue.Assignees = append(issue.Assignees, login)
		if types.AcceptUser(p.filter, login) {
			p.queue.AddUser(login)
		}
	}

	comments, err := p.client.IssueComments(ctx, owner.Name, w.RepoName, w.Number)
	if err != nil {
		return fmt.Errorf("failed to fetch comments of %s/%s#%d: %w", owner.Name, w.RepoName, w.Number, err)
	}
	for _, comment := range comments {
		issue.Comments = append(issue.Comments, types.IssueComment{
			UserLogin: sanitizeLogin(comment.UserLogin),
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt.UnixMilli(),
			UpdatedAt: comment.UpdatedAt.UnixMilli(),
		})
	}

	if types.AcceptIssueEvents(p.filter, owner, w.RepoName, w.Number) {
		fetchedEvents, err := p.client.IssueEvents(ctx, owner.Name, w.RepoName, w.Number)
		if err != nil {
			return fmt.Errorf("failed to fetch events of %s/%s#%d: %w", owner.Name, w.RepoName, w.Number, err)
		}
		for _, event := range fetchedEvents {
			if converted, ok := convertIssueEvent(event); ok {
				issue.IssueEvents = append(issue.IssueEvents, converted)
			}
		}
	}

	previous, err := p.store.GetIssue(owner, w.RepoName, w.Number)
	if err != nil {
		return fmt.Errorf("failed to read stored issue %s/%s#%d: %w", owner.Name, w.RepoName, w.Number, err)
	}
	if err := p.store.PutIssue(owner, issue); err != nil {
		return fmt.Errorf("failed to persist issue %s/%s#%d: %w", owner.Name, w.RepoName, w.Number, err)
	}

	if err := p.updateLastIssue(owner, w.RepoName, issue.Number, logger); err != nil {
		return err
	}

	changed, err := issueChanged(previous, issue)
	if err != nil {
		return err
	}
	if changed {
		return p.recordIssueChange(owner, w.RepoName, issue)
	}
	return nil
}

// updateLastIssue advances the repository's lastIssue bound when the
// mirrored issue's number exceeds it. Repositories without a stored
// record or without a bound are left alone.
func (p *Pool) updateLastIssue(owner types.Owner, repoName string, number int, logger zerolog.Logger) error {
	repo, err := p.store.GetRepository(owner, repoName)
	if err != nil {
		return fmt.Errorf("failed to read repository %s/%s: %w", owner.Name, repoName, err)
	}
	if repo == nil || repo.LastIssue == nil || *repo.LastIssue >= number {
		return nil
	}

	logger.Debug().Int("from", *repo.LastIssue).Int("to", number).Msg("Updating last issue of repository")
	repo.LastIssue = types.IntPtr(number)
	if err := p.store.PutRepository(repo); err != nil {
		return fmt.Errorf("failed to persist repository %s/%s: %w", owner.Name, repoName, err)
	}
	return nil
}

// issueChanged reports whether the stored and freshly mirrored versions
// differ. Comparison is on canonical JSON so field order and absent
// nulls never produce spurious changes. A missing stored version always
// counts as changed.
func issueChanged(previous, current *types.Issue) (bool, error) {
	if previous == nil {
		return true, nil
	}
	equal, err := jsonutil.Equal(previous, current)
	if err != nil {
		return false, fmt.Errorf("failed to compare issue versions: %w", err)
	}
	return !equal, nil
}

// recordIssueChange appends a change event for the issue to the store,
// publishes it on the broker, and writes one line to the change log
func (p *Pool) recordIssueChange(owner types.Owner, repoName string, issue *types.Issue) error {
	event := types.ResourceChangeEvent{
		Time:        p.clock.Now().UnixMilli(),
		Owner:       owner.Name,
		Repo:        repoName,
		UUID:        uuid.NewString(),
		IssueNumber: issue.Number,
	}
	if err := p.store.AppendChangeEvents([]types.ResourceChangeEvent{event}); err != nil {
		return fmt.Errorf("failed to append change event: %w", err)
	}

	if p.broker != nil {
		p.broker.Publish(&events.Event{
			Type:    events.EventIssueChanged,
			Message: fmt.Sprintf("%s/%s#%d changed", owner.Name, repoName, issue.Number),
			Metadata: map[string]string{
				"owner": owner.Name,
				"repo":  repoName,
				"issue": strconv.Itoa(issue.Number),
				"uuid":  event.UUID,
			},
		})
	}

	if p.changeLog != nil {
		body, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("failed to marshal issue for change log: %w", err)
		}
		stamp := time.UnixMilli(event.Time).Format(time.UnixDate)
		line := fmt.Sprintf("resource-change-event: %s %d %s %s\n", stamp, event.Time, event.UUID, body)
		if _, err := p.changeLog.Write([]byte(line)); err != nil {
			logger := log.WithComponent("worker")
			logger.Warn().Err(err).Msg("Failed to write change log line")
		}
	}
	return nil
}

// convertIssueEvent maps an upstream issue event to its mirrored form.
// Only the recognized kinds are kept; ok is false for all others.
func convertIssueEvent(event gh.IssueEvent) (types.IssueEvent, bool) {
	converted := types.IssueEvent{
		Type:           event.Kind,
		CreatedAt:      event.CreatedAt.UnixMilli(),
		ActorUserLogin: sanitizeLogin(event.ActorLogin),
	}

	switch event.Kind {
	case types.EventAssigned, types.EventUnassigned:
		converted.Data = types.IssueEventAssignedUnassigned{
			Assignee: sanitizeLogin(event.AssigneeLogin),
			Assigner: sanitizeLogin(event.AssignerLogin),
			Assigned: event.Kind == types.EventAssigned,
		}
	case types.EventLabeled, types.EventUnlabeled:
		converted.Data = types.IssueEventLabeledUnlabeled{
			Label:   stringValue(event.Label),
			Labeled: event.Kind == types.EventLabeled,
		}
	case types.EventRenamed:
		converted.Data = types.IssueEventRenamed{
			From: stringValue(event.RenameFrom),
			To:   stringValue(event.RenameTo),
		}
	case types.EventReopened, types.EventMerged, types.EventClosed:
		// Kept without a payload
	default:
		return types.IssueEvent{}, false
	}
	return converted, true
}

// sanitizeLogin maps an absent login to the ghost sentinel
func sanitizeLogin(login *string) string {
	if login == nil {
		return types.GhostLogin
	}
	return *login
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
