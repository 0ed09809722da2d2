// Package app wires configuration, logging, storage and the oracle into the
// dependencies the binaries share.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/bookkeeper/internal/artifacts"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/dvloznov/bookkeeper/internal/oracle"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/session"
	"github.com/dvloznov/bookkeeper/internal/triage"
	"github.com/rs/zerolog"
)

// ConfigEnv names the config file when no -config flag is given.
const ConfigEnv = "BOOKKEEPER_CONFIG"

// Runtime holds the long-lived resources of one process.
type Runtime struct {
	Config config.Config
	Log    zerolog.Logger
	Store  session.Store

	gcs *artifacts.GCSStorageService
}

// ConfigPath returns flagValue, or the BOOKKEEPER_CONFIG environment value.
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(ConfigEnv)
}

// Open loads the configuration at path, builds the logger and opens the
// session store.
func Open(ctx context.Context, path string) (*Runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx = logger.WithContext(ctx, log)

	store, err := session.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	log.Debug().Str("backend", cfg.Storage.Backend).Msg("Opened session store")
	return &Runtime{Config: cfg, Log: log, Store: store}, nil
}

// Context returns ctx carrying the runtime logger.
func (rt *Runtime) Context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, rt.Log)
}

// Storage returns the GCS client, creating it on first use.
func (rt *Runtime) Storage(ctx context.Context) (*artifacts.GCSStorageService, error) {
	if rt.gcs != nil {
		return rt.gcs, nil
	}
	gcs, err := artifacts.NewGCSStorageService(ctx)
	if err != nil {
		return nil, fmt.Errorf("Storage: %w", err)
	}
	rt.gcs = gcs
	return gcs, nil
}

// Deps builds pipeline dependencies. The oracle is built only when
// withOracle is set; GCS is connected when an artifacts bucket is configured
// or any of remoteInputs is a gs:// URI.
func (rt *Runtime) Deps(ctx context.Context, withOracle bool, remoteInputs ...string) (pipeline.Deps, error) {
	d := pipeline.Deps{Config: rt.Config, Store: rt.Store}

	needGCS := rt.Config.Artifacts.Bucket != ""
	for _, in := range remoteInputs {
		needGCS = needGCS || artifacts.IsURI(in)
	}
	if needGCS {
		gcs, err := rt.Storage(ctx)
		if err != nil {
			return d, fmt.Errorf("Deps: %w", err)
		}
		d.Storage = gcs
	}

	if withOracle {
		training, err := rt.Training(ctx)
		if err != nil {
			return d, fmt.Errorf("Deps: %w", err)
		}
		o, err := oracle.New(ctx, rt.Config.Oracle, rt.Config.Categorize.DefaultAccountCode, oracle.Deps{Training: training})
		if err != nil {
			return d, fmt.Errorf("Deps: %w", err)
		}
		d.Oracle = o
	}
	return d, nil
}

// Training returns the merged results of the configured training sessions.
// It is empty unless the bayes provider is selected.
func (rt *Runtime) Training(ctx context.Context) ([]domain.CategorizationResult, error) {
	if rt.Config.Oracle.Provider != "bayes" {
		return nil, nil
	}
	ids := rt.Config.Oracle.TrainingSessions
	if len(ids) == 0 {
		metas, err := rt.Store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("Training: %w", err)
		}
		for _, m := range metas {
			ids = append(ids, m.SessionID)
		}
	}

	var history []domain.CategorizationResult
	for _, id := range ids {
		_, records, err := rt.Store.ReadAll(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("Training: %w", err)
		}
		history = append(history, triage.MergeLatest(records)...)
	}
	rt.Log.Info().Int("sessions", len(ids)).Int("examples", len(history)).Msg("Loaded training history")
	return history, nil
}

// Close releases the store and the GCS client.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.gcs != nil {
		errs = append(errs, rt.gcs.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}
