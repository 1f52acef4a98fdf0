package storage

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/jonboulle/clockwork"

	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/types"
)

const (
	keysDir         = "keys"
	metadataDir     = "metadata"
	changeEventsDir = "events"
	quarantineDir   = "old"

	processedEventsFile   = "event-hashes.txt"
	changeEventFilePrefix = "issue-"

	// Processed fingerprints beyond this are evicted oldest first
	maxProcessedEvents = 1000

	// Change-event files older than this are deleted on read
	changeEventRetention = 8 * 24 * time.Hour
)

// FileStore implements Store on a directory tree of JSON documents. The
// path of each file identifies the resource it holds. All writes are
// atomic replaces, so readers never observe partial documents.
//
// FileStore is safe for concurrent use.
type FileStore struct {
	mu   sync.RWMutex
	root string

	initialized atomic.Bool

	clock clockwork.Clock
}

// NewFileStore opens the store rooted at dir, creating it when absent.
// A store with any prior contents starts initialized.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	s := &FileStore{
		root:  dir,
		clock: clockwork.NewRealClock(),
	}
	s.initialized.Store(len(entries) > 0)

	return s, nil
}

// GetOrganization implements Store
func (s *FileStore) GetOrganization(name string) (*types.Organization, error) {
	var org types.Organization
	found, err := s.readJSON(orgKey(name)+"/"+name+".json", &org)
	if err != nil || !found {
		return nil, err
	}
	return &org, nil
}

// PutOrganization implements Store
func (s *FileStore) PutOrganization(org *types.Organization) error {
	return s.writeJSON(orgKey(org.Name)+"/"+org.Name+".json", org)
}

// GetUserRepositories implements Store
func (s *FileStore) GetUserRepositories(userName string) (*types.UserRepositories, error) {
	var userRepos types.UserRepositories
	found, err := s.readJSON(userRepositoriesKey(userName)+"/"+userName+".json", &userRepos)
	if err != nil || !found {
		return nil, err
	}
	return &userRepos, nil
}

// PutUserRepositories implements Store
func (s *FileStore) PutUserRepositories(userRepos *types.UserRepositories) error {
	key := userRepositoriesKey(userRepos.UserName)
	return s.writeJSON(key+"/"+userRepos.UserName+".json", userRepos)
}

// GetRepository implements Store
func (s *FileStore) GetRepository(owner types.Owner, repoName string) (*types.Repository, error) {
	var repo types.Repository
	found, err := s.readJSON(repoKey(owner, repoName)+"/"+repoName+".json", &repo)
	if err != nil || !found {
		return nil, err
	}
	return &repo, nil
}

// PutRepository implements Store. The stored last-known issue number
// never regresses: a put with a lower or absent lastIssue keeps the
// value already on disk.
func (s *FileStore) PutRepository(repo *types.Repository) error {
	owner := repo.Owner()

	existing, err := s.GetRepository(owner, repo.Name)
	if err != nil {
		return err
	}

	stored := *repo
	if existing != nil && existing.LastIssue != nil {
		if stored.LastIssue == nil || *stored.LastIssue < *existing.LastIssue {
			stored.LastIssue = existing.LastIssue
		}
	}

	return s.writeJSON(repoKey(owner, repo.Name)+"/"+repo.Name+".json", &stored)
}

// GetIssue implements Store
func (s *FileStore) GetIssue(owner types.Owner, repoName string, number int) (*types.Issue, error) {
	var issue types.Issue
	found, err := s.readJSON(issueKey(owner, repoName, number)+".json", &issue)
	if err != nil || !found {
		return nil, err
	}
	return &issue, nil
}

// PutIssue implements Store
func (s *FileStore) PutIssue(owner types.Owner, issue *types.Issue) error {
	return s.writeJSON(issueKey(owner, issue.ParentRepo, issue.Number)+".json", issue)
}

// GetUser implements Store
func (s *FileStore) GetUser(login string) (*types.User, error) {
	var user types.User
	found, err := s.readJSON(userKey(login)+".json", &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// PutUser implements Store
func (s *FileStore) PutUser(user *types.User) error {
	return s.writeJSON(userKey(user.Login)+".json", user)
}

// ProcessedEvents implements Store
func (s *FileStore) ProcessedEvents() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.root, metadataDir, processedEventsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read processed events: %w", err)
	}

	var fingerprints []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fingerprints = append(fingerprints, line)
		}
	}
	return fingerprints, nil
}

// AddProcessedEvents implements Store. Fingerprints already present are
// not duplicated. When the set exceeds its cap the oldest entries are
// evicted.
func (s *FileStore) AddProcessedEvents(fingerprints []string) error {
	existing, err := s.ProcessedEvents()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(existing))
	for _, fp := range existing {
		seen[fp] = struct{}{}
	}

	merged := existing
	for _, fp := range fingerprints {
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		merged = append(merged, fp)
	}

	if len(merged) > maxProcessedEvents {
		merged = merged[len(merged)-maxProcessedEvents:]
	}

	contents := strings.Join(merged, "\n") + "\n"
	return s.writeFileLocked(filepath.Join(metadataDir, processedEventsFile), []byte(contents))
}

// ClearProcessedEvents implements Store
func (s *FileStore) ClearProcessedEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.root, metadataDir, processedEventsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear processed events: %w", err)
	}
	return nil
}

// AppendChangeEvents implements Store. Each call writes one log file
// named after the first event's timestamp; on a filename collision the
// timestamp is incremented until unused.
func (s *FileStore) AppendChangeEvents(events []types.ResourceChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, changeEventsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create change-event directory: %w", err)
	}

	ts := events[0].Time
	var path string
	for {
		path = filepath.Join(dir, fmt.Sprintf("%s%d.json", changeEventFilePrefix, ts))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		ts++
	}

	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal change events: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write change events: %w", err)
	}
	return nil
}

// RecentChangeEvents implements Store. Returns events with a timestamp
// at or after since, oldest first. Log files past the retention window
// are deleted along the way.
func (s *FileStore) RecentChangeEvents(since int64) ([]types.ResourceChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, changeEventsDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read change-event directory: %w", err)
	}

	cutoff := s.clock.Now().Add(-changeEventRetention).UnixMilli()

	var result []types.ResourceChangeEvent
	for _, entry := range entries {
		name := entry.Name()
		ts, ok := parseChangeEventTimestamp(name)
		if !ok {
			continue
		}

		path := filepath.Join(dir, name)
		if ts < cutoff {
			// Best effort, a failed delete is retried next read
			if err := os.Remove(path); err != nil {
				log.WithComponent("storage").Warn().Err(err).Str("file", name).
					Msg("Failed to delete expired change-event file")
			}
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read change events %s: %w", name, err)
		}
		var events []types.ResourceChangeEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("failed to parse change events %s: %w", name, err)
		}
		for _, event := range events {
			if event.Time >= since {
				result = append(result, event)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result, nil
}

// PruneChangeEvents deletes change-event log files past the retention
// window without reading the survivors. Reads do the same pruning as a
// side effect; this is for offline maintenance of a store no process is
// serving. Returns the number of files deleted.
func (s *FileStore) PruneChangeEvents() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, changeEventsDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read change-event directory: %w", err)
	}

	cutoff := s.clock.Now().Add(-changeEventRetention).UnixMilli()

	pruned := 0
	for _, entry := range entries {
		ts, ok := parseChangeEventTimestamp(entry.Name())
		if !ok || ts >= cutoff {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return pruned, fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
		pruned++
	}
	return pruned, nil
}

// parseChangeEventTimestamp extracts the epoch-ms timestamp from a
// change-event file name, reporting ok=false for foreign files
func parseChangeEventTimestamp(name string) (int64, bool) {
	if !strings.HasPrefix(name, changeEventFilePrefix) || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, changeEventFilePrefix), ".json"), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// GetString implements Store
func (s *FileStore) GetString(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.root, keysDir, key+".txt"))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return string(data), true, nil
}

// PutString implements Store
func (s *FileStore) PutString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFileLocked(filepath.Join(keysDir, key+".txt"), []byte(value))
}

// GetInt64 implements Store
func (s *FileStore) GetInt64(key string) (int64, bool, error) {
	value, found, err := s.GetString(key)
	if err != nil || !found {
		return 0, false, err
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse key %s: %w", key, err)
	}
	return parsed, true, nil
}

// PutInt64 implements Store
func (s *FileStore) PutInt64(key string, value int64) error {
	return s.PutString(key, strconv.FormatInt(value, 10))
}

// IsInitialized implements Store
func (s *FileStore) IsInitialized() bool {
	return s.initialized.Load()
}

// Initialize implements Store
func (s *FileStore) Initialize() error {
	s.initialized.Store(true)
	return nil
}

// ReconcileConfiguration implements Store. Computes the content hash of
// the configured targets and compares it against the stored one. On a
// mismatch every top-level child except the quarantine directory is
// moved into old/<name>.old.<epoch-ms> and the store becomes
// uninitialized, which makes the next scheduler tick start a full scan.
func (s *FileStore) ReconcileConfiguration(orgs, userRepos, individualRepos []string) error {
	expected := contentsHash(orgs, userRepos, individualRepos)

	if !s.initialized.Load() {
		return s.PutString(KeyContentsHash, expected)
	}

	stored, found, err := s.GetString(KeyContentsHash)
	if err != nil {
		return err
	}
	if found && stored == expected {
		return nil
	}

	if err := s.quarantineContents(); err != nil {
		return err
	}
	if err := s.PutString(KeyContentsHash, expected); err != nil {
		return err
	}
	s.initialized.Store(false)
	return nil
}

func (s *FileStore) quarantineContents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldDir := filepath.Join(s.root, quarantineDir)
	if err := os.MkdirAll(oldDir, 0755); err != nil {
		return fmt.Errorf("failed to create quarantine directory: %w", err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to read store directory: %w", err)
	}

	ts := s.clock.Now().UnixMilli()
	for _, entry := range entries {
		if entry.Name() == quarantineDir {
			continue
		}
		src := filepath.Join(s.root, entry.Name())
		dst := filepath.Join(oldDir, fmt.Sprintf("%s.old.%d", entry.Name(), ts))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to quarantine %s: %w", entry.Name(), err)
		}
	}

	log.WithComponent("storage").Info().
		Str("quarantine_dir", oldDir).
		Msg("Configured targets changed, store contents moved aside")
	return nil
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readJSON(relPath string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.root, relPath))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", relPath, err)
	}
	return true, nil
}

func (s *FileStore) writeJSON(relPath string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", relPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFileLocked(relPath, data)
}

func (s *FileStore) writeFileLocked(relPath string, data []byte) error {
	path := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", relPath, err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}

// contentsHash derives the drift-detection hash of the configured
// targets: each list lowercased and sorted, framed by its section
// label, all joined with single spaces, hashed with SHA-256 and
// base64-encoded.
func contentsHash(orgs, userRepos, individualRepos []string) string {
	lines := []string{"orgs:"}
	lines = append(lines, normalizeTargets(orgs)...)
	lines = append(lines, "user-repos:")
	lines = append(lines, normalizeTargets(userRepos)...)
	lines = append(lines, "individual-repos:")
	lines = append(lines, normalizeTargets(individualRepos)...)

	sum := sha256.Sum256([]byte(strings.Join(lines, " ")))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func normalizeTargets(targets []string) []string {
	normalized := make([]string, 0, len(targets))
	for _, t := range targets {
		normalized = append(normalized, strings.ToLower(t))
	}
	sort.Strings(normalized)
	return normalized
}
