package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/KaramelBytes/statloom-cli/internal/logging"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 300 * time.Millisecond

// Watch runs the recipe at path, then re-runs it whenever the recipe or one
// of its dataset files changes, until ctx is done. Every run, successful or
// not, is passed to done. Directories are watched rather than files so that
// editors replacing a file on save are still seen.
func Watch(ctx context.Context, path string, opt Options, debounce time.Duration, done func(*Result, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()
	log := logging.Component("watch")

	dirs := map[string]bool{}
	inputs := map[string]bool{}
	run := func() error {
		r, err := LoadRecipe(path)
		files := []string{path}
		if err == nil {
			files = r.Inputs(opt.Resolve)
		}
		inputs = map[string]bool{}
		for _, f := range files {
			abs, aerr := filepath.Abs(f)
			if aerr != nil {
				abs = f
			}
			inputs[abs] = true
			dir := filepath.Dir(abs)
			if dirs[dir] {
				continue
			}
			if werr := w.Add(dir); werr != nil {
				return fmt.Errorf("watch %s: %w", dir, werr)
			}
			dirs[dir] = true
			log.Debug().Str("dir", dir).Msg("watching")
		}
		var res *Result
		if err == nil {
			res, err = Run(ctx, r, opt)
		}
		done(res, err)
		return nil
	}
	if err := run(); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || !inputs[name] {
				continue
			}
			log.Debug().Str("file", name).Str("op", ev.Op.String()).Msg("input changed")
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			if err := run(); err != nil {
				return err
			}
		}
	}
}
