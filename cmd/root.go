// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"reposerve/config"
	"reposerve/internal/core"
	"reposerve/internal/errors"
	"reposerve/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X reposerve/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the server or the client.
func Execute(ctx context.Context, args []string) error {
	d := config.Default()
	fs := flag.NewFlagSet("reposerve", flag.ContinueOnError)

	// ── mode and address ─────────────────────────────────────────
	fs.BoolP("listen", "l", false, "Run the server")
	fs.StringP("host", "H", d.Host, "Listen host (server) or server host (client)")
	fs.IntP("port", "p", d.Port, "Listen port (server) or server port (client)")

	// ── server ───────────────────────────────────────────────────
	fs.Int("max-clients", d.MaxClients, "Maximum concurrently connected clients")
	fs.String("repo", d.RepoDir, "Repository directory served by list/get")
	fs.Int("chunk-size", d.ChunkSize, "File transfer chunk size in bytes")
	fs.Int("buffer-size", d.BufferSize, "Maximum request size in bytes")
	fs.Duration("read-timeout", d.ReadTimeout, "Close sessions idle this long (0 = never)")
	fs.Duration("write-timeout", d.WriteTimeout, "Per-write deadline (0 = none)")
	fs.String("admin-addr", d.AdminAddr, "Serve /healthz, /metrics, /status, /sessions on this address")

	// ── client ───────────────────────────────────────────────────
	fs.StringP("name", "n", d.Name, "Display name (asked on stdin if empty)")
	fs.Int("retries", d.Retries, "Connect retries with exponential backoff")
	fs.Duration("dial-timeout", d.DialTimeout, "Per-attempt connect timeout")
	fs.Duration("idle-timeout", d.IdleTimeout, "End a file fetch after this much silence")

	// ── output ───────────────────────────────────────────────────
	fs.CountP("verbose", "v", "Increase verbosity (repeatable)")
	fs.String("log-file", d.LogFile, "Write logs to a rotated file instead of stderr")
	fs.Int("log-max-size", d.LogMaxSizeMB, "Log file size in MB before rotation")
	fs.Int("log-max-backups", d.LogMaxBackups, "Rotated log files to keep")

	var (
		configFile            string
		showVersion, showHelp bool
		dryRun                bool
	)
	fs.StringVarP(&configFile, "config", "c", "", "Config file (YAML, JSON, or TOML)")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("reposerve %s\n", version)
		return nil
	}

	cfg, err := config.Load(fs, configFile)
	if err != nil {
		return err
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		printDryRun(cfg)
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func newLogger(cfg *config.Config) *util.Logger {
	if cfg.LogFile != "" {
		return util.NewFileLogger(cfg.Verbose, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	}
	return util.NewLogger(cfg.Verbose)
}

// parsePositional applies "HOST PORT" in client mode.  The server takes
// its address from --host and -p only.
func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		if len(remaining) > 0 {
			return errors.Config("listen", remaining[0], "unexpected argument in listen mode",
				"use --host and -p to choose the listen address")
		}
		return nil
	}

	switch len(remaining) {
	case 0: // use --host / -p or their defaults
	case 2:
		port, err := strconv.Atoi(remaining[1])
		if err != nil {
			return errors.Config("port", remaining[1], "not a number",
				"usage: reposerve [options] <host> <port>")
		}
		cfg.Host = remaining[0]
		cfg.Port = port
	default:
		return errors.Config("host", nil, "expected <host> <port>",
			"usage: reposerve [options] <host> <port>")
	}
	return nil
}

func printDryRun(cfg *config.Config) {
	if cfg.Listen {
		fmt.Printf("serve %s: max-clients=%d repo=%s chunk-size=%d read-timeout=%s write-timeout=%s\n",
			cfg.Address(), cfg.MaxClients, cfg.RepoDir, cfg.ChunkSize, cfg.ReadTimeout, cfg.WriteTimeout)
		return
	}
	fmt.Printf("connect %s: retries=%d dial-timeout=%s idle-timeout=%s\n",
		cfg.Address(), cfg.Retries, cfg.DialTimeout, cfg.IdleTimeout)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `reposerve – multi-client file repository server v%s

Usage:
  reposerve -l [options]                      Serve the repository
  reposerve [options] <host> <port>           Connect interactively

Commands (client side):
  status        list every session, live and past
  list          list repository files
  get <file>    download a file
  exit          disconnect
  anything else is echoed back with ACK

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  Every option can be set as %s_<OPTION>, e.g. %s_MAX_CLIENTS=10.

Examples:
  reposerve -l -p 12345 --repo ./repository   Serve on localhost:12345
  reposerve -l --admin-addr :9090             Also expose /metrics
  reposerve --name alice localhost 12345      Connect as alice
`, config.EnvPrefix, config.EnvPrefix)
}
