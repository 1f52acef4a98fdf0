package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// defaultRateLimit is the hourly request budget assumed when the
	// file does not set one
	defaultRateLimit = 5000

	// defaultPauseMsecs is the per-request pause applied while the
	// upstream quota is healthy
	defaultPauseMsecs = 500

	// defaultEventScanSeconds is the time between event scans of an
	// owner
	defaultEventScanSeconds = 60
)

// IndividualRepoEntry is one entry of individualRepoList. The entry is
// either a bare "owner/name" string, the legacy form, or a mapping with
// a per-repository event-scan override:
//
//	individualRepoList:
//	  - jgwest/rogue-cloud
//	  - repo: argoproj/applicationset
//	    timeBetweenEventScansInSeconds: 3600
type IndividualRepoEntry struct {
	Repo                           string `yaml:"repo"`
	TimeBetweenEventScansInSeconds int64  `yaml:"timeBetweenEventScansInSeconds"`
}

// UnmarshalYAML accepts both the bare string and the mapping form
func (e *IndividualRepoEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&e.Repo)
	}
	type plain IndividualRepoEntry
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = IndividualRepoEntry(p)
	return nil
}

// Interval returns the entry's event-scan override, zero when the
// entry does not set one
func (e IndividualRepoEntry) Interval() time.Duration {
	if e.TimeBetweenEventScansInSeconds <= 0 {
		return 0
	}
	return time.Duration(e.TimeBetweenEventScansInSeconds) * time.Second
}

// Config is the mirror service configuration file
type Config struct {
	// GitHubServer is the upstream host, for example "github.com" or
	// an enterprise host. Empty means github.com.
	GitHubServer   string `yaml:"githubServer"`
	GitHubUsername string `yaml:"githubUsername"`
	GitHubPassword string `yaml:"githubPassword"`

	// OrgList and UserRepoList name the owners whose repositories are
	// all mirrored. IndividualRepoList names single repositories
	// mirrored on their own.
	OrgList            []string              `yaml:"orgList"`
	UserRepoList       []string              `yaml:"userRepoList"`
	IndividualRepoList []IndividualRepoEntry `yaml:"individualRepoList"`

	// PresharedKey authenticates read-API clients. Empty disables the
	// API's authentication check.
	PresharedKey string `yaml:"presharedKey"`

	// DBPath is the content store directory
	DBPath string `yaml:"dbPath"`

	GitHubRateLimit                int   `yaml:"githubRateLimit"`
	TimeBetweenEventScansInSeconds int64 `yaml:"timeBetweenEventScansInSeconds"`
	PauseBetweenRequestsInMsecs    int64 `yaml:"pauseBetweenRequestsInMsecs"`

	// FileLoggerPath, when set, is the directory receiving the rolling
	// change log
	FileLoggerPath string `yaml:"fileLoggerPath"`
}

// Load reads, parses and validates the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses and validates configuration bytes, applying defaults
// for the absent pacing keys
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.GitHubRateLimit <= 0 {
		cfg.GitHubRateLimit = defaultRateLimit
	}
	if cfg.PauseBetweenRequestsInMsecs <= 0 {
		cfg.PauseBetweenRequestsInMsecs = defaultPauseMsecs
	}
	if cfg.TimeBetweenEventScansInSeconds <= 0 {
		cfg.TimeBetweenEventScansInSeconds = defaultEventScanSeconds
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EventScanInterval returns the global time between event scans
func (c *Config) EventScanInterval() time.Duration {
	return time.Duration(c.TimeBetweenEventScansInSeconds) * time.Second
}

// PauseBetweenRequests returns the per-request pacing pause
func (c *Config) PauseBetweenRequests() time.Duration {
	return time.Duration(c.PauseBetweenRequestsInMsecs) * time.Millisecond
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("dbPath is required")
	}

	for _, org := range c.OrgList {
		if err := checkName("orgList", org); err != nil {
			return err
		}
	}
	for _, user := range c.UserRepoList {
		if err := checkName("userRepoList", user); err != nil {
			return err
		}
	}

	for _, entry := range c.IndividualRepoList {
		owner, repo, ok := strings.Cut(entry.Repo, "/")
		if !ok || owner == "" || repo == "" {
			return fmt.Errorf("individualRepoList entry %q is not in owner/name form", entry.Repo)
		}
		if err := checkName("individualRepoList", entry.Repo); err != nil {
			return err
		}
		for _, org := range c.OrgList {
			if owner == org {
				return fmt.Errorf("individual repository %q is already covered by organization %q", entry.Repo, org)
			}
		}
		for _, user := range c.UserRepoList {
			if owner == user {
				return fmt.Errorf("individual repository %q is already covered by user %q", entry.Repo, user)
			}
		}
	}
	return nil
}

func checkName(list, name string) error {
	if name == "" {
		return fmt.Errorf("%s contains an empty entry", list)
	}
	if strings.ContainsAny(name, " \t") {
		return fmt.Errorf("%s entry %q contains whitespace", list, name)
	}
	return nil
}
