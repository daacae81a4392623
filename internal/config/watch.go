package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the configuration file on write and passes the
// reloaded configuration to onChange; what is done with it is up to the
// caller. It is off by default; only --watch-config enables it.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *logrus.Entry
}

// Watch starts watching path and calls onChange(newConfig) whenever it is
// rewritten and still parses. Parse errors are logged and ignored; the
// previously resolved configuration remains in effect.
func Watch(path string, args CLIArgs, onChange func(*Resolved)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start config watcher")
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %q", path)
	}

	cw := &Watcher{watcher: w, log: logrus.WithField("component", "config-watch")}
	go cw.loop(args, onChange)
	return cw, nil
}

func (w *Watcher) loop(args CLIArgs, onChange func(*Resolved)) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			resolved, err := Load(args, TerminalPrompter{})
			if err != nil {
				w.log.WithError(err).Warn("config reload failed, keeping previous configuration")
				continue
			}
			onChange(resolved)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
