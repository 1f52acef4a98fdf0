/*
Package types defines the mirror's domain model and serialized wire schema.

Every document the mirror persists and serves is declared here: owners,
organizations, user repository lists, repositories, issues with their
comments and event logs, users, and resource-change events. The JSON field
names are the mirror's wire contract; the content store persists documents
in exactly this shape and the read API returns them byte-for-byte, so
existing downstream clients keep working across engine versions.

# Type Hierarchy

	Owner (org | user)
	├── Organization          name + repository names
	├── UserRepositories      userName + repository names
	└── Repository            id, issue number range, owner linkage
	    └── Issue             title, body, labels, assignees, reporter
	        ├── IssueComment  userLogin, body, timestamps
	        └── IssueEvent    type, actor, kind-specific payload

	ResourceChangeEvent       change-log entry (time, uuid, owner, repo, issue)
	User                      login, name, email

# Conventions

Timestamps:
  - All times are epoch milliseconds (int64); upstream time strings are
    converted once at the ingestion boundary.
  - Nullable times (closedAt) are pointers serialized as JSON null.

User references:
  - reporter, assignees, comment userLogin, event actorUserLogin and the
    assigned/unassigned payload fields always hold a real login or the
    sentinel "Ghost" (GhostLogin). They are never empty and never null in
    serialized form.

Issue events:
  - Only the kinds enumerated by the Event* constants are mirrored.
  - assigned/unassigned, labeled/unlabeled and renamed events carry a
    typed payload in Data; reopened, merged and closed carry null.
  - AssignedData/LabeledData/RenamedData decode the payload whether it
    is still the typed struct or a generic map after a JSON round trip.

Pull requests:
  - The upstream issue resource reports pull requests as issues; the
    mirror never persists them. PullRequest exists on Issue only because
    the field is part of the wire schema.

# Filter

Filter is the pluggable ingestion predicate consulted before processing
each owner, repository, issue, issue-event log, and user. The Accept*
helpers fold in the nil-filter-accepts-all rule so call sites stay flat.
*/
package types
