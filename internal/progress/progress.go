// Package progress records pipeline checkpoints in an append-only log.
package progress

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bankcap/internal/etl"
	"bankcap/internal/logger"
)

// TimestampLayout renders times like 2024-Mar-05-14:02:11.
const TimestampLayout = "2006-Jan-02-15:04:05"

// FormatLine renders one log line, newline included.
func FormatLine(at time.Time, message string) string {
	return at.Format(TimestampLayout) + " : " + message + "\n"
}

// FailureMessage renders a failure as a log message.
func FailureMessage(stage etl.Stage, err error) string {
	kind := etl.KindOf(err)
	if kind == "" {
		kind = "Unclassified"
	}
	return fmt.Sprintf("FAILED %s [%s]: %v", stage, kind, err)
}

// ── File Logger ─────────────────────────────────────────────

// FileLogger appends checkpoint lines to a file. The file is opened per
// line so concurrent processes interleave whole lines.
type FileLogger struct {
	Path string
	// Now is the clock; time.Now when nil.
	Now func() time.Time

	mu  sync.Mutex
	log *logger.Entry
}

// NewFileLogger returns a logger appending to path.
func NewFileLogger(path string) *FileLogger {
	return &FileLogger{
		Path: path,
		log:  logger.GetLogger().WithComponent("progress"),
	}
}

func (l *FileLogger) Checkpoint(message string) {
	l.entry().WithFields(logger.Fields{"checkpoint": message}).Info("checkpoint")
	l.append(message)
}

func (l *FileLogger) Failure(stage etl.Stage, err error) {
	l.entry().WithError(err).WithFields(logger.Fields{
		"stage": string(stage),
		"kind":  string(etl.KindOf(err)),
	}).Error("pipeline failed")
	l.append(FailureMessage(stage, err))
}

// append never fails the run; a broken progress log is reported and
// the pipeline carries on.
func (l *FileLogger) append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(FormatLine(l.now(), message)); err != nil {
		l.entry().WithError(err).Warn("progress log write failed")
	}
}

func (l *FileLogger) write(line string) error {
	if l.Path == "" {
		return errors.New("progress log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *FileLogger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *FileLogger) entry() *logger.Entry {
	if l.log == nil {
		l.log = logger.GetLogger().WithComponent("progress")
	}
	return l.log
}

// ── Recorder ────────────────────────────────────────────────

// Event is one recorded progress call.
type Event struct {
	Message string
	Stage   etl.Stage
	Err     error
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Checkpoint(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Message: message})
}

func (r *Recorder) Failure(stage etl.Stage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Message: FailureMessage(stage, err), Stage: stage, Err: err})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message
	}
	return out
}
