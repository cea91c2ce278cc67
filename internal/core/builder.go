package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"reposerve/config"
	"reposerve/internal/admin"
	"reposerve/internal/dispatch"
	"reposerve/internal/errors"
	"reposerve/internal/identity"
	"reposerve/internal/metrics"
	"reposerve/internal/repository"
	"reposerve/internal/session"
	"reposerve/internal/transport"
	"reposerve/util"
)

// Build constructs the appropriate Mode from the given configuration.
// The configuration is expected to have passed Validate.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildServe(cfg, logger)
	}
	return buildConnect(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) (Mode, error) {
	repo, err := repository.New(cfg.RepoDir, logger)
	if err != nil {
		return nil, errors.WithHint(err, "check that --repo points to a readable directory")
	}

	reg := session.NewRegistry(logger)
	m := metrics.New()

	mode := &ServeMode{
		Address:    cfg.Address(),
		MaxClients: cfg.MaxClients,
		Allocator:  &identity.Allocator{},
		Registry:   reg,
		Dispatcher: &dispatch.Dispatcher{
			Registry:     reg,
			Repo:         repo,
			Metrics:      m,
			Logger:       logger,
			BufSize:      cfg.BufferSize,
			ChunkSize:    cfg.ChunkSize,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		Metrics:      m,
		Logger:       logger,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.AdminAddr != "" {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if err := m.Register(promReg); err != nil {
			repo.Close() //nolint:errcheck
			return nil, errors.Wrapf(err, "register metrics")
		}
		mode.Admin = &admin.Server{
			Addr:    cfg.AdminAddr,
			Handler: admin.NewRouter(reg, m, promReg, logger),
			Logger:  logger,
		}
	}
	return mode, nil
}

func buildConnect(cfg *config.Config, logger *util.Logger) Mode {
	return &ConnectMode{
		Dialer: &transport.TCPDialer{
			Timeout: cfg.DialTimeout,
			Retries: cfg.Retries,
			Logger:  logger,
		},
		Address:     cfg.Address(),
		Name:        cfg.Name,
		Logger:      logger,
		IdleTimeout: cfg.IdleTimeout,
	}
}
