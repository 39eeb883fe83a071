// Package config loads the mirror's configured targets: the upstream
// server and credentials, the set of organizations/users/individual repos
// to ingest, and the pacing/logging/read-API knobs named in spec §6.
// Adapted from wesm-argh's config.LoadConfig (same JSON-file-plus-env-var
// shape), generalized from a single repository list into the mirror's
// three-way org/user/individual-repo target split.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvUpstreamToken is the environment variable name for the upstream
// platform credential, checked the same way wesm-argh checks
// ARGH_GITHUB_TOKEN.
const EnvUpstreamToken = "MIRRORD_UPSTREAM_TOKEN"

// Config is the mirror's full configured-targets document (spec §6).
type Config struct {
	// UpstreamHost is the upstream server hostname, or "github.com" for the
	// public instance.
	UpstreamHost string `json:"upstream_host"`

	// Token authenticates both the high-level (GraphQL) and low-level (REST)
	// upstream clients. Username is loaded but not used by either client.
	Username string `json:"username"`
	Token    string `json:"token"`

	// Organizations, Users, and IndividualRepos are the three disjoint
	// target lists (spec §6's "no owner of an individual repo may also
	// appear in the org list or user list").
	Organizations   []string `json:"organizations"`
	Users           []string `json:"users"`
	IndividualRepos []string `json:"individual_repos"`

	// EventScanIntervalOverrideSeconds overrides GlobalEventScanIntervalSeconds
	// for specific "<owner>/<repo>" individual repos.
	EventScanIntervalOverrideSeconds map[string]int `json:"event_scan_interval_override_seconds"`

	GlobalHourlyRequestLimit       int  `json:"global_hourly_request_limit"`
	GlobalPauseMillis              int  `json:"global_pause_millis"`
	GlobalEventScanIntervalSeconds int  `json:"global_event_scan_interval_seconds"`
	GlobalPause                    bool `json:"global_pause"`

	// FileLogDir, if non-empty, names a directory that cmd/mirrord creates
	// at startup. Log output still goes to stderr only; nothing writes a
	// file under this directory.
	FileLogDir string `json:"file_log_dir"`

	// PreSharedKey is consumed by the read API, never by the core (spec
	// §6).
	PreSharedKey string `json:"pre_shared_key"`

	// DBDir is the Content Store's root directory.
	DBDir string `json:"db_dir"`
}

// LoadConfig loads and validates a Config from a JSON file, applying the
// same environment-variable credential override wesm-argh's LoadConfig
// does for ARGH_GITHUB_TOKEN.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if envToken := os.Getenv(EnvUpstreamToken); envToken != "" {
		cfg.Token = envToken
	}

	if cfg.UpstreamHost == "" {
		cfg.UpstreamHost = "github.com"
	}
	if cfg.DBDir == "" {
		cfg.DBDir = "mirrord-db"
	}
	if !filepath.IsAbs(cfg.DBDir) {
		configDir := filepath.Dir(path)
		cfg.DBDir = filepath.Join(configDir, cfg.DBDir)
	}
	if cfg.GlobalEventScanIntervalSeconds <= 0 {
		cfg.GlobalEventScanIntervalSeconds = 300
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces spec §6's target-list disjointness constraint: no
// owner of an individual repo may also appear in the org or user list.
func (c *Config) validate() error {
	orgSet := make(map[string]bool, len(c.Organizations))
	for _, o := range c.Organizations {
		orgSet[strings.ToLower(o)] = true
	}
	userSet := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		userSet[strings.ToLower(u)] = true
	}
	for _, repo := range c.IndividualRepos {
		owner, _, ok := strings.Cut(repo, "/")
		if !ok {
			return fmt.Errorf("config: individual repo %q must be of the form <owner>/<repo>", repo)
		}
		lower := strings.ToLower(owner)
		if orgSet[lower] {
			return fmt.Errorf("config: individual repo owner %q also appears in the organization list", owner)
		}
		if userSet[lower] {
			return fmt.Errorf("config: individual repo owner %q also appears in the user list", owner)
		}
	}
	return nil
}

// EventScanInterval resolves the per-owner event-scan deadline interval
// (spec §4.6): the per-individual-repo override if one is configured for
// "<owner>/<repo>", otherwise the global default.
func (c *Config) EventScanInterval(ownerRepoKey string) int {
	if v, ok := c.EventScanIntervalOverrideSeconds[ownerRepoKey]; ok && v > 0 {
		return v
	}
	return c.GlobalEventScanIntervalSeconds
}
