package cli

import (
	"context"
	"errors"
	"fmt"

	"bankcap/internal/archive"
	"bankcap/internal/config"
	"bankcap/internal/dbclient"
	"bankcap/internal/etl"
	"bankcap/internal/etl/sinks"
	"bankcap/internal/logger"
	"bankcap/internal/progress"
	"bankcap/internal/service"
	"bankcap/internal/storage"

	_ "bankcap/internal/etl/sources" // registers http, https and file sources
)

// runtime holds everything a command needs for one invocation.
type runtime struct {
	cfg      *config.Config
	job      *etl.Job
	state    *storage.DB
	pipeline *service.PipelineService
}

// openRuntime loads configuration, configures logging and builds the
// pipeline service. The caller must call close.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}

	job, err := cfg.Job()
	if err != nil {
		return nil, err
	}

	state, err := storage.New(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	var archiver service.Archiver
	if cfg.Archive.Enabled {
		a, err := archive.New(ctx, archive.Settings{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Prefix:          cfg.Archive.Prefix,
			Endpoint:        cfg.Archive.Endpoint,
			PathStyle:       cfg.Archive.PathStyle,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			state.Close()
			return nil, fmt.Errorf("configure archive: %w", err)
		}
		archiver = a
	}

	engine, archivePaths := buildEngine(cfg)
	pipeline := service.NewPipelineService(
		job,
		engine,
		storage.NewRunStore(state),
		archiver,
		service.LogEmitter{},
		service.Options{
			Timeout:      cfg.Pipeline.Timeout,
			Cron:         cfg.Schedule.Cron,
			Watch:        cfg.Schedule.Watch,
			ArchivePaths: archivePaths,
		},
	)

	log.WithFields(logger.Fields{
		"job":     job.Name,
		"table":   job.Table,
		"driver":  cfg.Sinks.Database.Driver,
		"version": Version,
	}).Debug("runtime ready")

	return &runtime{cfg: cfg, job: job, state: state, pipeline: pipeline}, nil
}

// buildEngine assembles the sinks named by cfg. It also returns the flat
// files that are archived after a successful run.
func buildEngine(cfg *config.Config) (*etl.Engine, []string) {
	files := []etl.Destination{&sinks.CSVFile{Path: cfg.Sinks.CSV.Path}}
	paths := []string{cfg.Sinks.CSV.Path}
	if cfg.Sinks.Parquet.Enabled {
		files = append(files, &sinks.ParquetFile{Path: cfg.Sinks.Parquet.Path})
		paths = append(paths, cfg.Sinks.Parquet.Path)
	}

	var mirrors []etl.Destination
	if m := cfg.Sinks.Mongo; m.Enabled {
		mirrors = append(mirrors, &dbclient.MongoMirror{
			URI:        m.URI,
			Database:   m.Database,
			Collection: m.Collection,
		})
	}

	params := cfg.Sinks.Database.Params
	engine := &etl.Engine{
		OpenStore: func(ctx context.Context) (etl.TableStore, error) {
			conn, err := dbclient.Open(ctx, params)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Files:    files,
		Mirrors:  mirrors,
		Progress: progress.NewFileLogger(cfg.Progress.Path),
	}
	return engine, paths
}

func (r *runtime) close() error {
	r.pipeline.Stop()
	return r.state.Close()
}

// withRuntime opens a runtime, runs fn and closes the runtime.
func withRuntime(ctx context.Context, fn func(r *runtime) error) error {
	r, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	runErr := fn(r)
	if err := r.close(); err != nil {
		return errors.Join(runErr, fmt.Errorf("close state database: %w", err))
	}
	return runErr
}
