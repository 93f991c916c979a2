// Package site maps a job's resource demand to a named executor pool.
//
// A Site is the per-environment placement policy: it defines the pools to
// stand up for a run, picks exactly one pool for each job, and supplies the
// shell prefix injected before every job command. Concrete strategies are
// selected by the site.<computeSite>.class configuration key.
package site

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/pkg/model"
)

// Site is the placement policy for one compute site.
type Site interface {
	// Pools returns the executor pools to stand up for this run. Each pool
	// has a unique label. Missing required sizing parameters are reported
	// here, before anything is submitted.
	Pools() ([]Pool, error)

	// Select returns the label of exactly one pool from Pools for a job
	// with the given resource demand. It is total: every demand maps to a
	// valid pool.
	Select(res model.Resources) string

	// CommandPrefix returns shell text prepended to every job command;
	// empty when the site needs none.
	CommandPrefix() (string, error)

	// Address is the network address of the driver process, reachable from
	// the workers. A mistyped address override is a configuration error.
	Address() (string, error)

	// ForwardResources reports whether per-job resource hints are attached
	// at submission. Only pool types that accept hints may enable this.
	ForwardResources() bool
}

// New builds the Site named by the computeSite configuration key.
func New(cfg *config.Config, logger *slog.Logger) (Site, error) {
	siteName, err := config.Required[string](cfg, "computeSite")
	if err != nil {
		return nil, err
	}
	sub := cfg.Sub("site." + siteName)
	if sub == nil {
		return nil, fmt.Errorf("no configuration found for site %q", siteName)
	}
	class, err := config.Required[string](sub, "class")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", siteName, err)
	}
	forward, err := config.Default(sub, "forwardResources", false)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", siteName, err)
	}

	base := Base{
		name:   siteName,
		cfg:    cfg,
		site:   sub,
		logger: logging.Component(logger, "site").With("site", siteName),
	}

	// Resource-hint forwarding is only meaningful for pool types that accept
	// hints; rejecting the combination here keeps the failure out of the
	// submission path.
	if forward && class != "workqueue" {
		return nil, fmt.Errorf("site %s: class %q pools do not accept resource hints (forwardResources)", siteName, class)
	}

	switch class {
	case "local":
		return &Local{Base: base}, nil
	case "slurm":
		return &Slurm{Base: base}, nil
	case "tiered":
		return newTieredSlurm(base)
	case "singleton":
		return &Singleton{Slurm{Base: base}}, nil
	case "torque":
		return &Torque{Base: base}, nil
	case "workqueue":
		base.forwardResources = true
		return &WorkQueue{Base: base}, nil
	default:
		return nil, fmt.Errorf("site %s: unrecognised class %q", siteName, class)
	}
}

// Base carries the configuration shared by all site strategies.
type Base struct {
	name             string
	cfg              *config.Config
	site             *config.Config
	forwardResources bool
	logger           *slog.Logger
}

// CommandPrefix honours two site keys: commandPrefix (shell text to prepend)
// and environment (replicate the driver's environment on the worker).
func (b *Base) CommandPrefix() (string, error) {
	prefix, err := config.Default(b.site, "commandPrefix", "")
	if err != nil {
		return "", fmt.Errorf("site %s: %w", b.name, err)
	}
	env, err := config.Default(b.site, "environment", false)
	if err != nil {
		return "", fmt.Errorf("site %s: %w", b.name, err)
	}
	if env {
		prefix += "\n" + ExportEnvironment()
	}
	return prefix, nil
}

// Address returns the site's address override, or the host's first resolved
// address. Workers that reach the driver by another route set the override.
func (b *Base) Address() (string, error) {
	addr, err := config.Default(b.site, "address", "")
	if err != nil {
		return "", fmt.Errorf("site %s: %w", b.name, err)
	}
	if addr != "" {
		return addr, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "127.0.0.1", nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1", nil
	}
	return addrs[0], nil
}

// ForwardResources reports whether resource hints are forwarded per job.
func (b *Base) ForwardResources() bool {
	return b.forwardResources
}
