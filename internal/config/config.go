// Package config holds the YAML configuration document describing backup
// sources, destinations and jobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceType identifies a supported cloud file-storage source.
type SourceType string

const (
	SourceOneDrivePersonal SourceType = "onedrive_personal"
	SourceOneDriveBusiness SourceType = "onedrive_business"
	SourceSharePoint       SourceType = "sharepoint"
)

// DestinationType identifies a supported blob destination.
type DestinationType string

const (
	DestinationS3        DestinationType = "s3"
	DestinationAzureBlob DestinationType = "azure_blob"
)

// DetectionMode selects how "has this file changed" is decided.
type DetectionMode string

const (
	// DetectTimestamp marks a file modified iff its remote mtime is
	// strictly newer than the tracked one.
	DetectTimestamp DetectionMode = "timestamp"
	// DetectHash compares content digests; used when source timestamps
	// are unreliable.
	DetectHash DetectionMode = "hash"
	// DetectBoth applies timestamp first and hash-verifies only files the
	// timestamp check calls unchanged, guarding against clock skew.
	DetectBoth DetectionMode = "both"
)

// Source describes one remote file tree to back up.
type Source struct {
	Name    string     `yaml:"name"`
	Type    SourceType `yaml:"type"`
	User    string     `yaml:"user,omitempty"`     // onedrive: user principal, id, or "me"
	SiteURL string     `yaml:"site_url,omitempty"` // sharepoint
	Library string     `yaml:"library,omitempty"`  // sharepoint document library
	Folders []string   `yaml:"folders,omitempty"`  // glob patterns, empty = everything
}

// Destination describes one blob store uploads go to.
type Destination struct {
	Name string          `yaml:"name"`
	Type DestinationType `yaml:"type"`

	// S3
	Bucket   string `yaml:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"` // custom endpoint (minio etc.)

	// Azure Blob
	Account   string `yaml:"account,omitempty"`
	Container string `yaml:"container,omitempty"`

	// Common
	Prefix string `yaml:"prefix,omitempty"`
}

// Job ties sources to a destination with per-job sync policy.
type Job struct {
	Name              string        `yaml:"name"`
	Sources           []string      `yaml:"sources"`
	Destination       string        `yaml:"destination"`
	ChangeDetection   DetectionMode `yaml:"change_detection,omitempty"`
	DeletePropagation bool          `yaml:"delete_propagation,omitempty"`
	MaxFileSize       int64         `yaml:"max_file_size,omitempty"` // bytes, 0 = no ceiling
	Concurrency       int           `yaml:"concurrency,omitempty"`
	Enabled           *bool         `yaml:"enabled,omitempty"` // nil = enabled
}

// IsEnabled reports whether the job should run; jobs default to enabled.
func (j *Job) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// SyncOptions tune transfer behavior shared by all jobs.
type SyncOptions struct {
	RetryAttempts  int           `yaml:"retry_attempts,omitempty"`
	RetryDelay     time.Duration `yaml:"retry_delay,omitempty"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout,omitempty"`
	RateLimit      float64       `yaml:"rate_limit,omitempty"` // requests/sec, 0 = unlimited
}

// Config is the root configuration document.
type Config struct {
	Sources      []Source      `yaml:"sources"`
	Destinations []Destination `yaml:"destinations"`
	Jobs         []Job         `yaml:"backup_jobs"`
	SyncOptions  SyncOptions   `yaml:"sync_options,omitempty"`
	StatePath    string        `yaml:"state_path,omitempty"` // tracker database
}

const (
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 5 * time.Second
	defaultAttemptTimeout = 10 * time.Minute
	defaultConcurrency    = 4
)

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SyncOptions.RetryAttempts <= 0 {
		c.SyncOptions.RetryAttempts = defaultRetryAttempts
	}
	if c.SyncOptions.RetryDelay <= 0 {
		c.SyncOptions.RetryDelay = defaultRetryDelay
	}
	if c.SyncOptions.AttemptTimeout <= 0 {
		c.SyncOptions.AttemptTimeout = defaultAttemptTimeout
	}
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.ChangeDetection == "" {
			job.ChangeDetection = DetectTimestamp
		}
		if job.Concurrency <= 0 {
			job.Concurrency = defaultConcurrency
		}
	}
	for i := range c.Destinations {
		dst := &c.Destinations[i]
		if dst.Type == DestinationS3 && dst.Region == "" {
			dst.Region = "us-east-1"
		}
	}
}

// Validate checks cross-references and per-entry requirements. Errors name
// the offending entry.
func (c *Config) Validate() error {
	sources := make(map[string]*Source, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name == "" {
			return fmt.Errorf("source #%d: name is required", i+1)
		}
		if _, dup := sources[src.Name]; dup {
			return fmt.Errorf("source %q: duplicate name", src.Name)
		}
		switch src.Type {
		case SourceOneDrivePersonal, SourceOneDriveBusiness:
			if src.User == "" {
				return fmt.Errorf("source %q: user is required for %s", src.Name, src.Type)
			}
		case SourceSharePoint:
			if src.SiteURL == "" {
				return fmt.Errorf("source %q: site_url is required for sharepoint", src.Name)
			}
			if src.Library == "" {
				return fmt.Errorf("source %q: library is required for sharepoint", src.Name)
			}
		default:
			return fmt.Errorf("source %q: unsupported type %q", src.Name, src.Type)
		}
		sources[src.Name] = src
	}

	destinations := make(map[string]*Destination, len(c.Destinations))
	for i := range c.Destinations {
		dst := &c.Destinations[i]
		if dst.Name == "" {
			return fmt.Errorf("destination #%d: name is required", i+1)
		}
		if _, dup := destinations[dst.Name]; dup {
			return fmt.Errorf("destination %q: duplicate name", dst.Name)
		}
		switch dst.Type {
		case DestinationS3:
			if dst.Bucket == "" {
				return fmt.Errorf("destination %q: bucket is required for s3", dst.Name)
			}
		case DestinationAzureBlob:
			if dst.Account == "" {
				return fmt.Errorf("destination %q: account is required for azure_blob", dst.Name)
			}
			if dst.Container == "" {
				return fmt.Errorf("destination %q: container is required for azure_blob", dst.Name)
			}
		default:
			return fmt.Errorf("destination %q: unsupported type %q", dst.Name, dst.Type)
		}
		destinations[dst.Name] = dst
	}

	jobNames := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Name == "" {
			return fmt.Errorf("job #%d: name is required", i+1)
		}
		if _, dup := jobNames[job.Name]; dup {
			return fmt.Errorf("job %q: duplicate name", job.Name)
		}
		jobNames[job.Name] = struct{}{}
		if len(job.Sources) == 0 {
			return fmt.Errorf("job %q: at least one source is required", job.Name)
		}
		for _, ref := range job.Sources {
			if _, ok := sources[ref]; !ok {
				return fmt.Errorf("job %q: unknown source %q", job.Name, ref)
			}
		}
		if _, ok := destinations[job.Destination]; !ok {
			return fmt.Errorf("job %q: unknown destination %q", job.Name, job.Destination)
		}
		switch job.ChangeDetection {
		case DetectTimestamp, DetectHash, DetectBoth:
		default:
			return fmt.Errorf("job %q: unsupported change_detection %q", job.Name, job.ChangeDetection)
		}
		if job.MaxFileSize < 0 {
			return fmt.Errorf("job %q: max_file_size must be non-negative", job.Name)
		}
	}

	return nil
}

// SourceByName returns the named source config, or nil.
func (c *Config) SourceByName(name string) *Source {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i]
		}
	}
	return nil
}

// DestinationByName returns the named destination config, or nil.
func (c *Config) DestinationByName(name string) *Destination {
	for i := range c.Destinations {
		if c.Destinations[i].Name == name {
			return &c.Destinations[i]
		}
	}
	return nil
}

// JobByName returns the named job config, or nil.
func (c *Config) JobByName(name string) *Job {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i]
		}
	}
	return nil
}

// EnabledJobs returns all jobs not explicitly disabled.
func (c *Config) EnabledJobs() []Job {
	jobs := make([]Job, 0, len(c.Jobs))
	for _, job := range c.Jobs {
		if job.IsEnabled() {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
