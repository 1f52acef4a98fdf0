package types

// Filter is an optional predicate applied at each ingestion boundary.
// Returning false skips the unit. Skipping is advisory only; it must not
// leave orphan persisted records, so a skipped unit writes nothing at
// all. A nil Filter accepts everything.
type Filter interface {
	ProcessOwner(owner Owner) bool
	ProcessRepo(owner Owner, repoName string) bool
	ProcessIssue(owner Owner, repoName string, issueNumber int) bool
	ProcessIssueEvents(owner Owner, repoName string, issueNumber int) bool
	ProcessUser(login string) bool
}

// AcceptOwner reports whether the filter (possibly nil) accepts the owner
func AcceptOwner(f Filter, owner Owner) bool {
	return f == nil || f.ProcessOwner(owner)
}

// AcceptRepo reports whether the filter (possibly nil) accepts the repo
func AcceptRepo(f Filter, owner Owner, repoName string) bool {
	return f == nil || f.ProcessRepo(owner, repoName)
}

// AcceptIssue reports whether the filter (possibly nil) accepts the issue
func AcceptIssue(f Filter, owner Owner, repoName string, issueNumber int) bool {
	return f == nil || f.ProcessIssue(owner, repoName, issueNumber)
}

// AcceptIssueEvents reports whether the filter (possibly nil) accepts the
// issue's event log
func AcceptIssueEvents(f Filter, owner Owner, repoName string, issueNumber int) bool {
	return f == nil || f.ProcessIssueEvents(owner, repoName, issueNumber)
}

// AcceptUser reports whether the filter (possibly nil) accepts the login
func AcceptUser(f Filter, login string) bool {
	return f == nil || f.ProcessUser(login)
}
