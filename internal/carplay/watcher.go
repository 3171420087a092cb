package carplay

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

// buildWatcher keeps the engine's built flag current by watching the
// output directory, so a rebuild shows up in the UI without polling.
type buildWatcher struct {
	logger  *logger.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func newBuildWatcher(l *logger.Logger, dir string, onChange func(built bool)) (*buildWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	bw := &buildWatcher{
		logger:  l,
		watcher: w,
		done:    make(chan struct{}),
	}

	executable := filepath.Join(dir, "app")
	go bw.run(executable, onChange)
	return bw, nil
}

func (bw *buildWatcher) run(executable string, onChange func(built bool)) {
	for {
		select {
		case <-bw.done:
			return

		case ev, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != executable {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				bw.logger.Infof("Engine binary updated")
				onChange(true)
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				bw.logger.Infof("Engine binary removed")
				onChange(false)
			}

		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.logger.Warnf("Build watch error: %v", err)
		}
	}
}

func (bw *buildWatcher) close() {
	close(bw.done)
	bw.watcher.Close()
}
