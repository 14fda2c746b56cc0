package schedule

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Syncer is the part of Synchronizer the runner drives.
type Syncer interface {
	Sync(ctx context.Context) (Result, error)
}

// Runner re-syncs on a fixed interval and whenever one of the watched
// calendar files changes on disk. Sync errors are logged, not retried.
type Runner struct {
	Syncer   Syncer
	Interval time.Duration
	// WatchFiles are local .ics files to watch. Their parent directories are
	// watched so editors that replace files by rename are still seen.
	WatchFiles []string
	Debounce   time.Duration
	Logger     *log.Logger
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	debounce := r.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	var tick <-chan time.Time
	if r.Interval > 0 {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		fsEvents <-chan fsnotify.Event
		fsErrors <-chan error
		watched  = map[string]bool{}
	)
	if len(r.WatchFiles) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer watcher.Close()
		dirs := map[string]bool{}
		for _, f := range r.WatchFiles {
			abs, err := filepath.Abs(f)
			if err != nil {
				return err
			}
			watched[abs] = true
			dir := filepath.Dir(abs)
			if dirs[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
		fsEvents, fsErrors = watcher.Events, watcher.Errors
		logger.Printf("watching calendar files: %v", r.WatchFiles)
	}

	var (
		pending *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	run := func(reason string) {
		res, err := r.Syncer.Sync(ctx)
		if err != nil {
			logger.Printf("sync (%s) failed: %v", reason, err)
			return
		}
		logger.Printf("sync (%s): %d events from %q", reason, res.Events, res.Calendar)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			run("interval")
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounce)
			} else {
				if !pending.Stop() {
					select {
					case <-pending.C:
					default:
					}
				}
				pending.Reset(debounce)
			}
			fire = pending.C
		case <-fire:
			fire = nil
			run("file change")
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			logger.Printf("watcher error: %v", err)
		}
	}
}
