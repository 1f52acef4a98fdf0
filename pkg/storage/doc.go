/*
Package storage persists the mirrored GitHub resources as a directory
tree of JSON documents.

The storage package implements the Store interface twice: FileStore
writes one JSON file per resource under a configured root directory,
and CachedStore wraps any Store with an in-memory LRU so hot documents
are served without touching disk. The file layout is the public
contract of the mirror's data directory; paths identify resources.

# Architecture

	┌─────────────────── STORE STACK ────────────────────┐
	│                                                    │
	│  ┌──────────────────────────────────────┐          │
	│  │            CachedStore               │          │
	│  │  - LRU over document pointers        │          │
	│  │  - read-through on hit only          │          │
	│  │  - write-through on puts             │          │
	│  └──────────────────┬───────────────────┘          │
	│                     │                              │
	│  ┌──────────────────▼───────────────────┐          │
	│  │             FileStore                │          │
	│  │  - one RWMutex for the whole tree    │          │
	│  │  - atomic replace on every write     │          │
	│  │  - (nil, nil) for absent documents   │          │
	│  └──────────────────┬───────────────────┘          │
	│                     │                              │
	│  ┌──────────────────▼───────────────────┐          │
	│  │           Directory Layout           │          │
	│  │  <owner>/<repo>/<repo>.json          │          │
	│  │  <owner>/<repo>/<n>.json             │          │
	│  │  <org>/<org>.json                    │          │
	│  │  <user>/<user>.json                  │          │
	│  │  users/<login>.json                  │          │
	│  │  keys/<key>.txt                      │          │
	│  │  metadata/event-hashes.txt           │          │
	│  │  events/issue-<ms>.json              │          │
	│  │  old/                                │          │
	│  └──────────────────────────────────────┘          │
	└────────────────────────────────────────────────────┘

# Core Components

FileStore:
  - Implements Store on the directory tree
  - Writes go through an atomic rename, readers never observe a
    partially written document
  - A store directory with any prior contents starts initialized

CachedStore:
  - Wraps an inner Store with a size-bounded LRU
  - Reads populate the cache only when the document was found
  - Writes populate unconditionally, except repository puts, which
    invalidate because the inner store may merge the issue range
  - Purges itself when reconciliation moves the store contents aside

Directory Layout:
  - <owner>/<repo>/<repo>.json: Repository record
  - <owner>/<repo>/<n>.json: Issue number n
  - <org>/<org>.json: Organization with its repository names
  - <user>/<user>.json: a user's repository name list
  - users/<login>.json: User record
  - keys/<key>.txt: named scalars (lastFullScanStart, githubContentsHash)
  - metadata/event-hashes.txt: processed event fingerprints, one per line
  - events/issue-<ms>.json: change-event log files
  - old/: quarantined previous contents after configuration drift

# Behavioral Notes

Repository range monotonicity:
  - PutRepository never regresses lastIssue
  - A put carrying a lower or absent lastIssue keeps the stored value

Processed event fingerprints:
  - AddProcessedEvents unions, it never duplicates a fingerprint
  - Capped at 1000 entries, oldest evicted first
  - ClearProcessedEvents removes the file, reads then return empty

Change-event log:
  - AppendChangeEvents writes one file per call, named after the first
    event's epoch-ms timestamp
  - On a filename collision the timestamp is incremented until unused,
    so no append ever overwrites an earlier one
  - RecentChangeEvents returns entries at or after the given time,
    oldest first, and deletes files past the 8 day retention window

Configuration drift:
  - ReconcileConfiguration hashes the configured target lists
    (lowercased, sorted, framed, SHA-256, base64)
  - On mismatch every top-level child except old/ moves to
    old/<name>.old.<epoch-ms> and the store becomes uninitialized
  - The new hash is persisted, so running it again is a no-op
  - This is the only destructive operation in the package

# Usage

Creating the store stack:

	fileStore, err := storage.NewFileStore("/var/lib/ghmirror/db")
	if err != nil {
		return err
	}
	store, err := storage.NewCachedStore(fileStore)
	if err != nil {
		return err
	}
	defer store.Close()

Reading and writing documents:

	owner := types.OrgOwner("microclimate-dev2ops")

	issue, err := store.GetIssue(owner, "microclimate-vscode-tools", 26)
	if err != nil {
		return err
	}
	if issue == nil {
		// not mirrored yet
	}

	err = store.PutRepository(&types.Repository{
		OrgName:      types.StringPtr("microclimate-dev2ops"),
		Name:         "microclimate-vscode-tools",
		RepositoryID: 150116600,
		FirstIssue:   types.IntPtr(1),
		LastIssue:    types.IntPtr(26),
	})

Reconciling against the configured targets at startup:

	err = store.ReconcileConfiguration(
		cfg.OrgList, cfg.UserRepoList, cfg.IndividualRepoNames())
	if err != nil {
		return err
	}
	if !store.IsInitialized() {
		// next scheduler tick starts a full scan
	}

# Integration Points

This package integrates with:

  - pkg/worker: persists every processed resource
  - pkg/scheduler: scan bookkeeping via scalars and fingerprints
  - pkg/engine: reconciliation and lifecycle
  - pkg/api: all read endpoints are served from the CachedStore
  - pkg/types: document definitions

# Important Notes

  - Lookups return (nil, nil) when the document is absent; callers
    never parse error strings to detect absence
  - The single RWMutex serializes writers; document files are small,
    so writes are short
  - Cached documents are shared pointers. Callers must treat fetched
    records as read-only and build new records for puts.
  - The data directory can be inspected with standard tools; every
    document is plain JSON

# See Also

  - pkg/types for the document schema
  - pkg/engine for startup reconciliation
  - pkg/api for the read surface over this store
*/
package storage
