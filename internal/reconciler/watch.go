package reconciler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/constants"
)

// watch triggers a cycle whenever something under root changes. The .git
// directory is ignored so the reconciler's own commits do not retrigger it.
func (r *Reconciler) watch(ctx context.Context, root string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == constants.GitDir {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				r.handleEvent(watcher, event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
	}, nil
}

func (r *Reconciler) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if isInGitDir(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				r.logger.Warn("adding new directory to watcher", zap.Error(err))
			}
		}
	}
	r.logger.Debug("working tree changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	r.Trigger()
}

func isInGitDir(path string) bool {
	for dir := path; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if filepath.Base(dir) == constants.GitDir {
			return true
		}
	}
	return false
}
