package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/pool"
)

// Watch triggers the named pool task whenever something changes below one
// of dirs. Directories created later are watched as well. Missing
// directories are skipped; the worker's own polling still notices them
// once they appear. Watch returns once the watcher is set up and stops
// watching when ctx is done.
func Watch(ctx context.Context, p *pool.Pool, task string, dirs []string, log *logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if err := addTree(watcher, dir); err != nil {
			watcher.Close()
			return err
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				log.Tracef("watch: %s", ev)
				if ev.Has(fsnotify.Create) {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						if err := addTree(watcher, ev.Name); err != nil {
							log.Warnf("failed to watch %s: %v", ev.Name, err)
						}
					}
				}
				if err := p.Trigger(task); err != nil {
					log.Debugf("watch: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watch: %v", err)
			}
		}
	}()

	return nil
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
