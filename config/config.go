// Package config defines the runtime configuration for reposerve and
// loads it from flags, the environment, and an optional config file.
package config

import (
	"time"

	"reposerve/internal/errors"
	"reposerve/util"
)

// Config holds every tuneable for one reposerve process.  The
// mapstructure keys double as flag names and, upper-cased with dashes
// turned into underscores, as REPOSERVE_* environment variable names.
type Config struct {
	// ── Mode ─────────────────────────────────────────────────────────
	Listen bool `mapstructure:"listen"`

	// ── Connection ───────────────────────────────────────────────────
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// ── Server ───────────────────────────────────────────────────────
	MaxClients   int           `mapstructure:"max-clients"`
	RepoDir      string        `mapstructure:"repo"`
	ChunkSize    int           `mapstructure:"chunk-size"`
	BufferSize   int           `mapstructure:"buffer-size"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	AdminAddr    string        `mapstructure:"admin-addr"` // empty = no admin endpoint

	// ── Client ───────────────────────────────────────────────────────
	Name        string        `mapstructure:"name"`
	Retries     int           `mapstructure:"retries"`
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	IdleTimeout time.Duration `mapstructure:"idle-timeout"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose       int    `mapstructure:"verbose"`
	LogFile       string `mapstructure:"log-file"`
	LogMaxSizeMB  int    `mapstructure:"log-max-size"`
	LogMaxBackups int    `mapstructure:"log-max-backups"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		MaxClients:    DefaultMaxClients,
		RepoDir:       DefaultRepoDir,
		ChunkSize:     DefaultChunkSize,
		BufferSize:    DefaultBufferSize,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		Retries:       DefaultRetries,
		DialTimeout:   DefaultDialTimeout,
		IdleTimeout:   DefaultIdleTimeout,
		LogMaxSizeMB:  DefaultLogMaxSizeMB,
		LogMaxBackups: DefaultLogMaxBackups,
	}
}

// Address returns "host:port".
func (c *Config) Address() string {
	return util.FormatAddr(c.Host, c.Port)
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError values carrying a hint for the user.
func (c *Config) Validate() error {
	if c.Listen {
		return c.validateServer()
	}
	return c.validateClient()
}

func (c *Config) validateServer() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Config("port", c.Port, "out of range 0-65535",
			"use -p <port>; 0 picks a free port")
	}
	if c.MaxClients < 1 {
		return errors.Config("max-clients", c.MaxClients, "must be at least 1",
			"the default is 3")
	}
	if c.RepoDir == "" {
		return errors.Config("repo", nil, "required in listen mode",
			"use --repo <dir>; it is created if missing")
	}
	if c.ChunkSize < 1 {
		return errors.Config("chunk-size", c.ChunkSize, "must be positive",
			"the default is 1024 bytes")
	}
	if c.BufferSize < 1 {
		return errors.Config("buffer-size", c.BufferSize, "must be positive",
			"the default is 1024 bytes")
	}
	if c.ReadTimeout < 0 {
		return errors.Config("read-timeout", c.ReadTimeout, "must not be negative",
			"use 0 to disable the idle timeout")
	}
	if c.WriteTimeout < 0 {
		return errors.Config("write-timeout", c.WriteTimeout, "must not be negative",
			"use 0 to disable the write timeout")
	}
	return c.validateLog()
}

func (c *Config) validateClient() error {
	if c.Host == "" {
		return errors.Config("host", nil, "hostname is required",
			"usage: reposerve [options] <host> <port>")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Config("port", c.Port, "out of range 1-65535",
			"usage: reposerve [options] <host> <port>")
	}
	if c.Retries < 0 {
		return errors.Config("retries", c.Retries, "must not be negative",
			"use 0 to try once")
	}
	if c.IdleTimeout <= 0 {
		return errors.Config("idle-timeout", c.IdleTimeout, "must be positive",
			"file transfers end after this much silence; the default is 500ms")
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	if c.LogFile != "" && c.LogMaxSizeMB < 1 {
		return errors.Config("log-max-size", c.LogMaxSizeMB, "must be at least 1",
			"size is in megabytes")
	}
	return nil
}
