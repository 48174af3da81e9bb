package workflow

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads workflow templates when files in the template
// directory change. Edits to a template take effect on the next resolve;
// in-flight requests keep the steps they resolved with.
type Watcher struct {
	catalog *Catalog
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching dir and reloading changed templates into the
// catalog. The caller owns the returned watcher and must Close it.
func NewWatcher(catalog *Catalog, dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{catalog: catalog, fsw: fsw, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if err := w.catalog.loadFile(event.Name); err != nil {
				log.Printf("WARN: workflow template reload skipped: %v", err)
				continue
			}
			log.Printf("workflow template reloaded: %s", filepath.Base(event.Name))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("WARN: workflow template watcher: %v", err)
		}
	}
}

// Close stops the watcher and waits for the reload loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
