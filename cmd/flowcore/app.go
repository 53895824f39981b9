package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"flowcore/internal/blob"
	"flowcore/internal/config"
	"flowcore/internal/core"
	"flowcore/internal/data"
	"flowcore/plugins/jobarchive"
)

// app is everything a subcommand needs, built from configuration.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	svc     *core.Service
	blobs   blob.Store
	metrics *prometheus.Registry
}

func openApp(ctx context.Context, flags *globalFlags, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, errOut)

	policy, err := core.ParseMissingEntityPolicy(cfg.Reload.MissingEntity)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	factories, closeStore, err := core.OpenRepositories(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open repositories: %w", err)
	}
	reg := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	svc := core.NewService(factories,
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithMissingEntityPolicy(policy),
		core.WithValueStore(data.New(blobs)),
		core.WithWorkers(cfg.Workers),
		core.WithNotifyBuffer(cfg.NotifyBuffer),
		core.WithExtensions(jobarchive.Extension{
			Enabled: cfg.Extensions.ExtendedEdition,
			Store:   blobs,
			Prefix:  cfg.Extensions.JobArchivePrefix,
		}),
		core.WithCloser(closeStore),
	)
	logger.Debug("runtime ready", "storage", cfg.Storage.Driver, "blob", blobs.Driver(), "extended_edition", cfg.Extensions.ExtendedEdition)
	return &app{cfg: cfg, logger: logger, svc: svc, blobs: blobs, metrics: reg}, nil
}

func (a *app) Close() error { return a.svc.Close() }
