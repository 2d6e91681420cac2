package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"bankcap/internal/etl"
	"bankcap/internal/logger"
	"bankcap/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: runs, history, schedule and file triggers
// ─────────────────────────────────────────────────────────────

// DefaultTimeout bounds a single run when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// watchDebounce coalesces bursts of file events into one run.
const watchDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned when the target table is being loaded.
var ErrAlreadyRunning = errors.New("already running")

// Archiver uploads the flat files of a successful run.
type Archiver interface {
	Archive(ctx context.Context, runID string, paths []string) ([]string, error)
}

// Options configures a PipelineService.
type Options struct {
	Timeout time.Duration
	// Cron is a robfig/cron expression; empty disables the schedule.
	Cron string
	// Watch lists files whose changes trigger a run.
	Watch []string
	// ArchivePaths are the flat files handed to the Archiver after a
	// successful run.
	ArchivePaths []string
}

// PipelineService runs one configured job and keeps its history.
type PipelineService struct {
	job      *etl.Job
	engine   *etl.Engine
	runs     *storage.RunStore
	archiver Archiver
	emitter  EventEmitter
	opts     Options
	log      *logger.Entry

	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewPipelineService creates a PipelineService. runs, archiver and
// emitter may be nil.
func NewPipelineService(
	job *etl.Job,
	engine *etl.Engine,
	runs *storage.RunStore,
	archiver Archiver,
	emitter EventEmitter,
	opts Options,
) *PipelineService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &PipelineService{
		job:      job,
		engine:   engine,
		runs:     runs,
		archiver: archiver,
		emitter:  emitter,
		opts:     opts,
		log:      logger.GetLogger().WithComponent("pipeline").WithFields(logger.Fields{"job": jobName(job)}),
	}
}

// Job returns the job the service runs.
func (s *PipelineService) Job() *etl.Job { return s.job }

// ── Run ────────────────────────────────────────────────────

// Run executes the pipeline once. A second call for the same target
// table while a run is in progress fails with ErrAlreadyRunning.
func (s *PipelineService) Run(ctx context.Context, trigger string) (*etl.RunResult, error) {
	if !s.runningJobs.TryLock(s.job.Table) {
		return nil, fmt.Errorf("pipeline for table %s: %w", s.job.Table, ErrAlreadyRunning)
	}
	defer s.runningJobs.Unlock(s.job.Table)

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	log := s.log.WithFields(logger.Fields{"trigger": trigger, "table": s.job.Table})
	log.Info("run started")

	result, runErr := s.engine.Run(runCtx, s.job)

	if s.runs != nil {
		if err := s.runs.CreateRunLog(storage.NewRunLog(s.job, result, trigger)); err != nil {
			log.WithError(err).Warn("failed to record run")
		}
	}

	log = log.WithFields(logger.Fields{
		"run_id":         result.RunID,
		"rows_extracted": result.RowsExtracted,
		"rows_written":   result.RowsWritten,
	})
	if runErr != nil {
		log.WithError(runErr).WithFields(logger.Fields{
			"stage": string(result.FailedStage),
			"kind":  string(result.ErrorKind),
		}).Error("run failed")
		s.emitter.Emit(ctx, EventRunFailed, result)
		return result, runErr
	}
	logger.LogDuration(log, "run", result.Duration, nil)
	s.emitter.Emit(ctx, EventRunCompleted, result)

	s.archive(ctx, result.RunID)
	return result, nil
}

// archive uploads the flat files. A failed upload is logged; the data
// is already loaded, so the run stays successful.
func (s *PipelineService) archive(ctx context.Context, runID string) {
	if s.archiver == nil || len(s.opts.ArchivePaths) == 0 {
		return
	}
	keys, err := s.archiver.Archive(ctx, runID, s.opts.ArchivePaths)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"run_id": runID}).Warn("archive failed")
		return
	}
	s.emitter.Emit(ctx, EventArchived, keys)
}

// Query reruns the fixed queries against the loaded table.
func (s *PipelineService) Query(ctx context.Context) ([]*etl.QueryResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.engine.RunQueriesOnly(runCtx, s.job)
}

// ListRunLogs returns the most recent runs of this job, newest first.
func (s *PipelineService) ListRunLogs(limit int) ([]storage.RunLog, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	return s.runs.ListRunLogs(s.job.Name, limit)
}

// Running returns the tables with a run in progress.
func (s *PipelineService) Running() []string {
	return s.runningJobs.Running()
}

// ── Watchers (cron + file_watch) ──────────────────────────

// SetTriggers replaces the cron expression and watch list. They take
// effect on the next RestartWatchers.
func (s *PipelineService) SetTriggers(cronExpr string, watch []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Cron = cronExpr
	s.opts.Watch = watch
}

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from Options. Runs started by a trigger use ctx.
func (s *PipelineService) RestartWatchers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	if s.opts.Cron != "" {
		c := cron.New()
		_, err := c.AddFunc(s.opts.Cron, func() {
			s.log.Info("cron: running job")
			if _, err := s.Run(ctx, storage.TriggerSchedule); err != nil {
				s.log.WithError(err).Warn("cron: run failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.opts.Cron, err)
		}
		c.Start()
		s.cronSched = c
		s.log.WithFields(logger.Fields{"cron": s.opts.Cron}).Info("cron: scheduled")
	}

	if len(s.opts.Watch) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	watched := make(map[string]bool)
	watchedDirs := make(map[string]bool)
	for _, p := range s.opts.Watch {
		absPath, err := filepath.Abs(p)
		if err != nil {
			s.log.WithError(err).WithFields(logger.Fields{"path": p}).Warn("watcher: bad path")
			continue
		}
		watched[absPath] = true

		// Watch the directory: editors replace files, which drops a file watch.
		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				s.log.WithError(err).WithFields(logger.Fields{"dir": dir}).Warn("watcher: failed to watch dir")
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-watchCtx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				if !watched[absPath] {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					s.log.WithFields(logger.Fields{"path": absPath}).Info("watcher: file changed, running job")
					if _, err := s.Run(ctx, storage.TriggerWatch); err != nil {
						s.log.WithError(err).Warn("watcher: run failed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.WithError(err).Warn("watcher: error")
			}
		}
	}()

	s.log.WithFields(logger.Fields{"files": len(watched)}).Info("watcher: watching")
	return nil
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *PipelineService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *PipelineService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

func jobName(job *etl.Job) string {
	if job == nil {
		return ""
	}
	return job.Name
}
