/*
Package config loads the mirror service's YAML configuration file. The
key names are stable across releases, so existing config files keep
working:

	githubServer: github.com
	githubUsername: mirror-bot
	githubPassword: ...
	orgList:
	  - eclipse
	userRepoList:
	  - jgwest
	individualRepoList:
	  - microclimate-dev/microclimate
	  - repo: argoproj/applicationset
	    timeBetweenEventScansInSeconds: 3600
	presharedKey: ...
	dbPath: /var/lib/ghmirror
	githubRateLimit: 5000
	timeBetweenEventScansInSeconds: 60
	pauseBetweenRequestsInMsecs: 500
	fileLoggerPath: /var/log/ghmirror

Load applies defaults for the pacing keys (rate limit 5000/hour, pause
500 ms, event scans every 60 s) and validates the target lists: names
must be non-empty without whitespace, individual repositories must be
owner-qualified, and an individual repository whose owner is already in
orgList or userRepoList is refused.

individualRepoList entries are either bare "owner/name" strings or
mappings carrying a per-repository event-scan override; both forms may
be mixed in one list.
*/
package config
