package storage

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/ghmirror/pkg/types"
)

// Cache entries beyond this are evicted least-recently-used first.
// Eviction only costs a re-read, correctness never depends on an entry
// staying cached.
const cacheSize = 100000

// Cache keys carry a kind prefix so documents of different kinds stored
// under the same name (an org and a user list, a string and a long)
// cannot shadow each other.
const (
	cacheKindOrg       = "org/"
	cacheKindUserRepos = "user-repos/"
	cacheKindRepo      = "repo/"
	cacheKindIssue     = "issue/"
	cacheKindUser      = "user/"
	cacheKindString    = "string-"
	cacheKindInt64     = "long-"
)

// CachedStore wraps an inner Store with an in-memory LRU. Reads are
// populated on hit only, writes populate unconditionally. Repository
// puts invalidate instead, since the inner store may merge the stored
// issue range into the written record.
type CachedStore struct {
	inner Store
	cache *lru.Cache[string, any]
}

// NewCachedStore wraps inner with a read/write-through cache
func NewCachedStore(inner Store) (*CachedStore, error) {
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create store cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

func cachedGet[T any](s *CachedStore, key string, load func() (*T, error)) (*T, error) {
	if v, ok := s.cache.Get(key); ok {
		if cached, ok := v.(*T); ok {
			return cached, nil
		}
	}
	value, err := load()
	if err != nil {
		return nil, err
	}
	if value != nil {
		s.cache.Add(key, value)
	}
	return value, nil
}

// GetOrganization implements Store
func (s *CachedStore) GetOrganization(name string) (*types.Organization, error) {
	return cachedGet(s, cacheKindOrg+orgKey(name), func() (*types.Organization, error) {
		return s.inner.GetOrganization(name)
	})
}

// PutOrganization implements Store
func (s *CachedStore) PutOrganization(org *types.Organization) error {
	if err := s.inner.PutOrganization(org); err != nil {
		return err
	}
	s.cache.Add(cacheKindOrg+orgKey(org.Name), org)
	return nil
}

// GetUserRepositories implements Store
func (s *CachedStore) GetUserRepositories(userName string) (*types.UserRepositories, error) {
	return cachedGet(s, cacheKindUserRepos+userRepositoriesKey(userName), func() (*types.UserRepositories, error) {
		return s.inner.GetUserRepositories(userName)
	})
}

// PutUserRepositories implements Store
func (s *CachedStore) PutUserRepositories(userRepos *types.UserRepositories) error {
	if err := s.inner.PutUserRepositories(userRepos); err != nil {
		return err
	}
	s.cache.Add(cacheKindUserRepos+userRepositoriesKey(userRepos.UserName), userRepos)
	return nil
}

// GetRepository implements Store
func (s *CachedStore) GetRepository(owner types.Owner, repoName string) (*types.Repository, error) {
	return cachedGet(s, cacheKindRepo+repoKey(owner, repoName), func() (*types.Repository, error) {
		return s.inner.GetRepository(owner, repoName)
	})
}

// PutRepository implements Store. Invalidates the cached record, the
// inner store decides the stored issue range.
func (s *CachedStore) PutRepository(repo *types.Repository) error {
	if err := s.inner.PutRepository(repo); err != nil {
		return err
	}
	s.cache.Remove(cacheKindRepo + repoKey(repo.Owner(), repo.Name))
	return nil
}

// GetIssue implements Store
func (s *CachedStore) GetIssue(owner types.Owner, repoName string, number int) (*types.Issue, error) {
	return cachedGet(s, cacheKindIssue+issueKey(owner, repoName, number), func() (*types.Issue, error) {
		return s.inner.GetIssue(owner, repoName, number)
	})
}

// PutIssue implements Store
func (s *CachedStore) PutIssue(owner types.Owner, issue *types.Issue) error {
	if err := s.inner.PutIssue(owner, issue); err != nil {
		return err
	}
	s.cache.Add(cacheKindIssue+issueKey(owner, issue.ParentRepo, issue.Number), issue)
	return nil
}

// GetUser implements Store
func (s *CachedStore) GetUser(login string) (*types.User, error) {
	return cachedGet(s, cacheKindUser+userKey(login), func() (*types.User, error) {
		return s.inner.GetUser(login)
	})
}

// PutUser implements Store
func (s *CachedStore) PutUser(user *types.User) error {
	if err := s.inner.PutUser(user); err != nil {
		return err
	}
	s.cache.Add(cacheKindUser+userKey(user.Login), user)
	return nil
}

// ProcessedEvents implements Store
func (s *CachedStore) ProcessedEvents() ([]string, error) {
	return s.inner.ProcessedEvents()
}

// AddProcessedEvents implements Store
func (s *CachedStore) AddProcessedEvents(fingerprints []string) error {
	return s.inner.AddProcessedEvents(fingerprints)
}

// ClearProcessedEvents implements Store
func (s *CachedStore) ClearProcessedEvents() error {
	return s.inner.ClearProcessedEvents()
}

// AppendChangeEvents implements Store
func (s *CachedStore) AppendChangeEvents(events []types.ResourceChangeEvent) error {
	return s.inner.AppendChangeEvents(events)
}

// RecentChangeEvents implements Store
func (s *CachedStore) RecentChangeEvents(since int64) ([]types.ResourceChangeEvent, error) {
	return s.inner.RecentChangeEvents(since)
}

// GetString implements Store
func (s *CachedStore) GetString(key string) (string, bool, error) {
	if v, ok := s.cache.Get(cacheKindString + key); ok {
		if cached, ok := v.(string); ok {
			return cached, true, nil
		}
	}
	value, found, err := s.inner.GetString(key)
	if err != nil || !found {
		return "", found, err
	}
	s.cache.Add(cacheKindString+key, value)
	return value, true, nil
}

// PutString implements Store
func (s *CachedStore) PutString(key, value string) error {
	if err := s.inner.PutString(key, value); err != nil {
		return err
	}
	s.cache.Add(cacheKindString+key, value)
	return nil
}

// GetInt64 implements Store
func (s *CachedStore) GetInt64(key string) (int64, bool, error) {
	if v, ok := s.cache.Get(cacheKindInt64 + key); ok {
		if cached, ok := v.(int64); ok {
			return cached, true, nil
		}
	}
	value, found, err := s.inner.GetInt64(key)
	if err != nil || !found {
		return 0, found, err
	}
	s.cache.Add(cacheKindInt64+key, value)
	return value, true, nil
}

// PutInt64 implements Store
func (s *CachedStore) PutInt64(key string, value int64) error {
	if err := s.inner.PutInt64(key, value); err != nil {
		return err
	}
	s.cache.Add(cacheKindInt64+key, value)
	return nil
}

// IsInitialized implements Store
func (s *CachedStore) IsInitialized() bool {
	return s.inner.IsInitialized()
}

// Initialize implements Store
func (s *CachedStore) Initialize() error {
	return s.inner.Initialize()
}

// ReconcileConfiguration implements Store. When reconciliation leaves
// the inner store uninitialized its contents were moved aside, so the
// cache is dropped with them.
func (s *CachedStore) ReconcileConfiguration(orgs, userRepos, individualRepos []string) error {
	if err := s.inner.ReconcileConfiguration(orgs, userRepos, individualRepos); err != nil {
		return err
	}
	if !s.inner.IsInitialized() {
		s.cache.Purge()
	}
	return nil
}

// Close implements Store
func (s *CachedStore) Close() error {
	return s.inner.Close()
}
