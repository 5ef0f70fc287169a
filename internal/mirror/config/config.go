// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the YAML configuration file: the
// general section (paths, timeouts, retry/scheduling knobs) and the
// per-repository source/destination/versions sections, per spec §6.3.
// The shape follows general.rs/config.rs's field grouping; the source
// distilled from was TOML, the spec mandates YAML, so only the
// encoding tag and the data-path/tmp-path/bind-address names changed.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zextras/mirrord/internal/mirror/integrity"
)

// General holds process-wide settings shared by every repository.
type General struct {
	DataPath      string `yaml:"data_path"`
	TmpPath       string `yaml:"tmp_path"`
	BindAddress   string `yaml:"bind_address"`
	Timeout       int    `yaml:"timeout"`
	MaxRetries    int    `yaml:"max_retries"`
	RetrySleep    int    `yaml:"retry_sleep"`
	MinSyncDelay  int    `yaml:"min_sync_delay"`
	MaxSyncDelay  int    `yaml:"max_sync_delay"`
}

// TimeoutDuration is General.Timeout expressed as a time.Duration.
func (g General) TimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// RetrySleepDuration is General.RetrySleep expressed as a time.Duration.
func (g General) RetrySleepDuration() time.Duration {
	return time.Duration(g.RetrySleep) * time.Second
}

// MinSyncDelayDuration is General.MinSyncDelay (minutes) as a time.Duration.
func (g General) MinSyncDelayDuration() time.Duration {
	return time.Duration(g.MinSyncDelay) * time.Minute
}

// MaxSyncDelayDuration is General.MaxSyncDelay (minutes) as a time.Duration.
func (g General) MaxSyncDelayDuration() time.Duration {
	return time.Duration(g.MaxSyncDelay) * time.Minute
}

// Source describes where a repository's upstream metadata and packages
// come from.
type Source struct {
	Endpoint          string `yaml:"endpoint"`
	Kind              string `yaml:"kind"`
	PublicPGPKey      string `yaml:"public_pgp_key"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	AuthorizationFile string `yaml:"authorization_file"`
}

// Destination names exactly one sink: an object store bucket (S3-shaped
// name retained from the original TOML, used here for any object-store
// backend) xor a local filesystem root.
type Destination struct {
	S3    string `yaml:"s3"`
	Local string `yaml:"local"`
}

// Repository is one mirrored repo's full configuration.
type Repository struct {
	Name        string      `yaml:"name"`
	Source      Source      `yaml:"source"`
	Destination Destination `yaml:"destination"`
	Versions    []string    `yaml:"versions"`
}

// Config is the top-level parsed configuration file.
type Config struct {
	General General      `yaml:"general"`
	Repo    []Repository `yaml:"repo"`
}

// Load reads and parses the YAML file at path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize strips trailing slashes from endpoints/paths, per spec §6.3.
func (c *Config) normalize() {
	c.General.DataPath = strings.TrimSuffix(c.General.DataPath, "/")
	c.General.TmpPath = strings.TrimSuffix(c.General.TmpPath, "/")
	for i := range c.Repo {
		c.Repo[i].Source.Endpoint = strings.TrimSuffix(c.Repo[i].Source.Endpoint, "/")
		c.Repo[i].Destination.Local = strings.TrimSuffix(c.Repo[i].Destination.Local, "/")
	}
}

// Validate checks the invariants spec §6.3 requires: unique repo names,
// the reserved name "all" disallowed, a known source kind, a parsable
// source.public_pgp_key when one is set, and exactly one configured
// destination per repo.
func (c *Config) Validate() error {
	if c.General.DataPath == "" {
		return errors.New("general.data_path is required")
	}
	if c.General.TmpPath == "" {
		return errors.New("general.tmp_path is required")
	}
	seen := make(map[string]bool, len(c.Repo))
	for _, r := range c.Repo {
		if r.Name == "" {
			return errors.New("repo name is required")
		}
		if r.Name == "all" {
			return errors.New(`repo name "all" is reserved`)
		}
		if seen[r.Name] {
			return errors.Errorf("duplicate repo name %q", r.Name)
		}
		seen[r.Name] = true
		switch r.Source.Kind {
		case "debian", "redhat":
		default:
			return errors.Errorf("repo %q: unknown source.kind %q", r.Name, r.Source.Kind)
		}
		if strings.TrimSpace(r.Source.PublicPGPKey) != "" {
			if _, err := integrity.ParseKeyRing([]byte(r.Source.PublicPGPKey)); err != nil {
				return errors.Wrapf(err, "repo %q: invalid source.public_pgp_key", r.Name)
			}
		}
		if r.Destination.S3 == "" && r.Destination.Local == "" {
			return errors.Errorf("repo %q: no destination configured", r.Name)
		}
		if r.Destination.S3 != "" && r.Destination.Local != "" {
			return errors.Errorf("repo %q: destination.s3 and destination.local are mutually exclusive", r.Name)
		}
	}
	return nil
}

// Find returns the repository configuration with the given name, or
// false if none matches.
func (c *Config) Find(name string) (Repository, bool) {
	for _, r := range c.Repo {
		if r.Name == name {
			return r, true
		}
	}
	return Repository{}, false
}
