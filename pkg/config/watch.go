package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WarnOnReplace watches path's directory and logs a warning if the config
// file is rewritten while the process is running. Dynamic reconfiguration
// is an explicit Non-goal, so this never reloads — it only tells an
// operator their edit has no effect until restart. Stop the returned
// watcher on shutdown.
func WarnOnReplace(path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	name := filepath.Base(path)
	go func() {
		for event := range watcher.Events {
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) != 0 {
				log.Warn().Str("path", path).Msg("config file changed on disk; dynamic reconfiguration is not supported, restart to apply")
			}
		}
	}()

	return watcher, nil
}
