package storage

import (
	"strconv"

	"github.com/cuemby/ghmirror/pkg/types"
)

// Scalar keys used by the ingestion engine
const (
	// KeyLastFullScanStart is the epoch-ms start time of the most
	// recent full scan
	KeyLastFullScanStart = "lastFullScanStart"

	// KeyContentsHash is the content hash of the configured targets,
	// used to detect configuration drift across restarts
	KeyContentsHash = "githubContentsHash"
)

// Store persists the mirrored resources. Lookups return (nil, nil) when
// the document is absent.
// Implemented by FileStore and CachedStore.
type Store interface {
	// Organizations
	GetOrganization(name string) (*types.Organization, error)
	PutOrganization(org *types.Organization) error

	// User repository lists
	GetUserRepositories(userName string) (*types.UserRepositories, error)
	PutUserRepositories(userRepos *types.UserRepositories) error

	// Repositories
	GetRepository(owner types.Owner, repoName string) (*types.Repository, error)
	PutRepository(repo *types.Repository) error

	// Issues
	GetIssue(owner types.Owner, repoName string, number int) (*types.Issue, error)
	PutIssue(owner types.Owner, issue *types.Issue) error

	// Users
	GetUser(login string) (*types.User, error)
	PutUser(user *types.User) error

	// Processed event fingerprints
	ProcessedEvents() ([]string, error)
	AddProcessedEvents(fingerprints []string) error
	ClearProcessedEvents() error

	// Change-event log
	AppendChangeEvents(events []types.ResourceChangeEvent) error
	RecentChangeEvents(since int64) ([]types.ResourceChangeEvent, error)

	// Scalars
	GetString(key string) (string, bool, error)
	PutString(key, value string) error
	GetInt64(key string) (int64, bool, error)
	PutInt64(key string, value int64) error

	// Lifecycle
	IsInitialized() bool
	Initialize() error
	ReconcileConfiguration(orgs, userRepos, individualRepos []string) error

	// Utility
	Close() error
}

// Document keys. These double as relative file paths in the FileStore
// and as cache keys in the CachedStore.

func orgKey(name string) string {
	return name
}

func userRepositoriesKey(userName string) string {
	return userName
}

func repoKey(owner types.Owner, repoName string) string {
	return owner.Name + "/" + repoName
}

func issueKey(owner types.Owner, repoName string, number int) string {
	return owner.Name + "/" + repoName + "/" + strconv.Itoa(number)
}

func userKey(login string) string {
	return "users/" + login
}
