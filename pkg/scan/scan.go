package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/types"
)

const (
	// matchStreakBailout is how many already-processed events in a row
	// let a feed conclude the store is current with everything older.
	matchStreakBailout = 20

	// pacedEventsPerRequest is the conservative request estimate
	// charged while walking an activity feed.
	pacedEventsPerRequest = 20
)

// ErrCrossOwnerMove reports an issue that now lives under a different
// owner. All store keys are rooted at the configured owner, so the
// move cannot be followed.
var ErrCrossOwnerMove = errors.New("issue moved to a different owner")

// ignoredIssueEventKinds are administrative kinds that say nothing
// about issue content.
var ignoredIssueEventKinds = map[string]bool{
	"subscribed": true,
	"mentioned":  true,
}

// Scanner walks the upstream activity feeds of an owner to find which
// issues changed since the last scan, and enqueues exactly those. When
// a feed cannot prove the store is current it reports that a full scan
// is required instead.
type Scanner struct {
	queue  *queue.WorkQueue
	client gh.Client
	data   *Data
}

// NewScanner creates a scanner recording processed events in data
func NewScanner(q *queue.WorkQueue, client gh.Client, data *Data) *Scanner {
	return &Scanner{queue: q, client: client, data: data}
}

// Result is what scanning one owner's feeds learned
type Result struct {
	// NewFingerprints holds the fingerprints of all events considered
	// on the feeds, whether previously processed or not
	NewFingerprints []string

	// FullScanRequired is set when at least one feed ended without
	// proving the store already covers it
	FullScanRequired bool
}

// scanEntry is one feed event whose issue needs to be re-mirrored
type scanEntry struct {
	repoName string
	ref      gh.IssueRef
}

// feedResult is what one feed walk produced before it was folded into
// the owner result
type feedResult struct {
	fingerprints     []string
	fullScanRequired bool
}

// Scan walks the owner's activity feed and every repository's
// issue-events feed, newest first, bounded by lastFullScanStart (unix
// milliseconds). ping is called as events are worked through so a
// supervising runner can see progress.
//
// The scan is best effort per feed: an upstream fault skips the
// affected feed and the next scan revisits it. A cross-owner issue
// move aborts the scan with ErrCrossOwnerMove; the fingerprints
// collected up to that point are still returned.
func (s *Scanner) Scan(ctx context.Context, w queue.OwnerWork, lastFullScanStart int64, ping func()) (*Result, error) {
	if ping == nil {
		ping = func() {}
	}
	logger := log.WithComponent("scan").With().Str("owner", w.Owner.String()).Logger()
	res := newResolver(s.client)
	seenIssues := make(map[string]struct{})
	result := &Result{}

	if len(w.Repos) > 0 {
		for _, repo := range w.Repos {
			name := repo.Name
			feed := func(fn func([]gh.ActivityEvent) (bool, error)) error {
				return s.client.RepositoryActivity(ctx, w.Owner.Name, name, fn)
			}
			fr, err := s.scanActivityFeed(ctx, logger, w.Owner, name, feed, lastFullScanStart, res, seenIssues, ping)
			if err := absorb(result, fr, err, logger); err != nil {
				return result, err
			}
		}
	} else {
		feed := func(fn func([]gh.ActivityEvent) (bool, error)) error {
			if w.Owner.Type == types.OwnerTypeOrg {
				return s.client.OrgActivity(ctx, w.Owner.Name, fn)
			}
			return s.client.UserActivity(ctx, w.Owner.Name, fn)
		}
		fr, err := s.scanActivityFeed(ctx, logger, w.Owner, "*", feed, lastFullScanStart, res, seenIssues, ping)
		if err := absorb(result, fr, err, logger); err != nil {
			return result, err
		}
	}

	repos, err := s.targetRepositories(ctx, w)
	if err != nil {
		return result, fmt.Errorf("failed to list repositories of %s: %w", w.Owner, err)
	}
	for _, repo := range repos {
		fr, err := s.scanIssueEventsFeed(ctx, logger, w.Owner, repo.Name, lastFullScanStart, res, seenIssues, ping)
		if err := absorb(result, fr, err, logger); err != nil {
			return result, err
		}
	}
	return result, nil
}

// absorb folds one feed's outcome into the owner result. An upstream
// fault drops the feed's contribution; the next scan revisits it. A
// cross-owner move keeps the fingerprints and aborts.
func absorb(result *Result, fr feedResult, err error, logger zerolog.Logger) error {
	if err != nil && !errors.Is(err, ErrCrossOwnerMove) {
		logger.Info().Err(err).Msg("Ignoring upstream fault during event scan")
		return nil
	}
	result.NewFingerprints = append(result.NewFingerprints, fr.fingerprints...)
	result.FullScanRequired = result.FullScanRequired || fr.fullScanRequired
	return err
}

func (s *Scanner) targetRepositories(ctx context.Context, w queue.OwnerWork) ([]gh.Repo, error) {
	if len(w.Repos) > 0 {
		return w.Repos, nil
	}
	if w.Owner.Type == types.OwnerTypeOrg {
		return s.client.OrgRepositories(ctx, w.Owner.Name)
	}
	return s.client.UserRepositories(ctx, w.Owner.Name)
}

// scanActivityFeed walks one activity feed, newest first. target names
// the feed in logs: a repository name, or "*" for an owner-level feed.
func (s *Scanner) scanActivityFeed(ctx context.Context, logger zerolog.Logger, owner types.Owner, target string,
	feed func(func([]gh.ActivityEvent) (bool, error)) error, lastFullScan int64,
	res *resolver, seenIssues map[string]struct{}, ping func()) (feedResult, error) {

	fr := feedResult{fullScanRequired: true}
	var entries []scanEntry
	lastCreatedAt := int64(math.MaxInt64)
	streak := 0
	count := 0

	err := feed(func(page []gh.ActivityEvent) (bool, error) {
		for _, ev := range page {
			count++
			if count%pacedEventsPerRequest == 0 {
				s.queue.WaitIfNeeded(ctx, 1)
			}
			ping()

			createdAt := ev.CreatedAt.UnixMilli()
			if createdAt < lastFullScan {
				if fr.fullScanRequired {
					logger.Debug().
						Str("target", target).
						Time("createdAt", ev.CreatedAt).
						Msg("Feed reaches past the last full scan, no full scan required")
					fr.fullScanRequired = false
				}
				return false, nil
			}
			// Feeds are newest first; the platform sometimes breaks that
			if createdAt > lastCreatedAt {
				logger.Info().
					Str("kind", ev.Kind).
					Str("repo", ev.RepoName).
					Time("createdAt", ev.CreatedAt).
					Msg("Received out-of-order activity event")
			}
			lastCreatedAt = createdAt

			if ev.Kind != gh.ActivityIssues && ev.Kind != gh.ActivityIssueComment {
				continue
			}
			if ev.Issue == nil || ev.Issue.PullRequest || ev.RepoName == "" {
				continue
			}

			fp := fingerprint(activityKindToken(ev.Kind), owner, ev.RepoName, ev.Issue.Number, ev.CreatedAt, ev.ActorLogin)
			fr.fingerprints = append(fr.fingerprints, fp)
			if s.data.Contains(fp) {
				streak++
			} else {
				streak = 0
				entries = append(entries, scanEntry{repoName: ev.RepoName, ref: *ev.Issue})
			}
			if streak == matchStreakBailout {
				fr.fullScanRequired = false
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return feedResult{}, err
	}

	return s.finishFeed(ctx, logger, owner, target, fr, entries, res, seenIssues, ping)
}

// scanIssueEventsFeed walks one repository's issue-events feed, newest
// first.
func (s *Scanner) scanIssueEventsFeed(ctx context.Context, logger zerolog.Logger, owner types.Owner, repoName string,
	lastFullScan int64, res *resolver, seenIssues map[string]struct{}, ping func()) (feedResult, error) {

	fr := feedResult{fullScanRequired: true}
	var entries []scanEntry
	lastCreatedAt := int64(math.MaxInt64)
	streak := 0

	err := s.client.RepositoryIssueEvents(ctx, owner.Name, repoName, func(page []gh.IssueEvent) (bool, error) {
		s.queue.WaitIfNeeded(ctx, 1)
		ping()
		for _, ev := range page {
			createdAt := ev.CreatedAt.UnixMilli()
			if createdAt < lastFullScan {
				if fr.fullScanRequired {
					logger.Debug().
						Str("target", repoName).
						Time("createdAt", ev.CreatedAt).
						Msg("Feed reaches past the last full scan, no full scan required")
					fr.fullScanRequired = false
				}
				return false, nil
			}
			if ignoredIssueEventKinds[ev.Kind] {
				continue
			}
			if ev.Issue == nil || ev.Issue.PullRequest {
				continue
			}
			// Feeds are newest first; the platform sometimes breaks that
			if createdAt > lastCreatedAt {
				logger.Info().
					Str("kind", ev.Kind).
					Str("repo", repoName).
					Int("issue", ev.Issue.Number).
					Msg("Received out-of-order issue event")
			}
			lastCreatedAt = createdAt

			fp := fingerprint(ev.Kind, owner, repoName, ev.Issue.Number, ev.CreatedAt, ev.ActorLogin)
			fr.fingerprints = append(fr.fingerprints, fp)
			if s.data.Contains(fp) {
				streak++
			} else {
				streak = 0
				entries = append(entries, scanEntry{repoName: repoName, ref: *ev.Issue})
			}
			if streak == matchStreakBailout {
				fr.fullScanRequired = false
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return feedResult{}, err
	}

	return s.finishFeed(ctx, logger, owner, repoName, fr, entries, res, seenIssues, ping)
}

// finishFeed resolves the feed's entries and queues the issue units.
// Fingerprints become processed knowledge even when the feed requires a
// full scan or ends in a cross-owner move; a resolution fault instead
// drops the whole feed so the next scan sees its events again.
func (s *Scanner) finishFeed(ctx context.Context, logger zerolog.Logger, owner types.Owner, target string,
	fr feedResult, entries []scanEntry, res *resolver, seenIssues map[string]struct{}, ping func()) (feedResult, error) {

	items, err := s.resolveEntries(ctx, logger, owner, entries, res, seenIssues, ping)
	if err != nil && !errors.Is(err, ErrCrossOwnerMove) {
		return feedResult{}, err
	}
	for _, fp := range fr.fingerprints {
		s.data.AddIfAbsent(fp)
	}
	if err != nil {
		return fr, err
	}
	if fr.fullScanRequired {
		logger.Info().Str("target", target).Msg("Full scan required, not queueing individual issues")
		return fr, nil
	}
	for _, item := range items {
		s.queue.AddIssue(item)
	}
	return fr, nil
}

// resolveEntries fetches the current state of each entry's issue,
// following repository moves, and returns the issue units to queue.
// seenIssues spans all feeds of one owner scan so an issue changed on
// several feeds is only queued once.
func (s *Scanner) resolveEntries(ctx context.Context, logger zerolog.Logger, owner types.Owner, entries []scanEntry,
	res *resolver, seenIssues map[string]struct{}, ping func()) ([]queue.IssueWork, error) {

	var items []queue.IssueWork
	for _, e := range entries {
		key := e.repoName + "-" + strconv.Itoa(e.ref.Number)
		if _, ok := seenIssues[key]; ok {
			continue
		}
		seenIssues[key] = struct{}{}

		s.queue.WaitIfNeeded(ctx, 1)
		issue, err := res.issue(ctx, owner.Name, e.repoName, e.ref.Number)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve issue %s/%s#%d: %w", owner.Name, e.repoName, e.ref.Number, err)
		}

		repoName, number := e.repoName, e.ref.Number
		if e.ref.ID != 0 && issue.ID != e.ref.ID {
			// The fetch was redirected: the repository moved and the
			// number space starts over at the new location.
			movedOwner, movedRepo, movedNumber, perr := parseIssueURL(issue.HTMLURL)
			if perr != nil {
				return nil, fmt.Errorf("failed to follow moved issue %s/%s#%d: %w", owner.Name, e.repoName, e.ref.Number, perr)
			}
			if movedOwner != owner.Name {
				return nil, fmt.Errorf("%w: %s/%s#%d is now under %s", ErrCrossOwnerMove, owner.Name, e.repoName, e.ref.Number, movedOwner)
			}
			if _, err := res.issue(ctx, movedOwner, movedRepo, movedNumber); err != nil {
				return nil, fmt.Errorf("failed to resolve moved issue %s/%s#%d: %w", movedOwner, movedRepo, movedNumber, err)
			}
			logger.Info().
				Str("repo", e.repoName).
				Int("issue", e.ref.Number).
				Str("movedRepo", movedRepo).
				Int("movedIssue", movedNumber).
				Msg("Issue moved with its repository, following it")
			repoName, number = movedRepo, movedNumber
		}

		ping()
		items = append(items, queue.IssueWork{Owner: owner, RepoName: repoName, Number: number})
	}
	return items, nil
}

// parseIssueURL extracts owner, repository and number from an issue URL
// of the form .../<owner>/<repo>/issues/<number>
func parseIssueURL(url string) (owner, repo string, number int, err error) {
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-2] != "issues" {
		return "", "", 0, fmt.Errorf("unrecognized issue URL %q", url)
	}
	number, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", "", 0, fmt.Errorf("unrecognized issue URL %q", url)
	}
	return parts[len(parts)-4], parts[len(parts)-3], number, nil
}
