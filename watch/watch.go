// Package watch keeps an index current by re-adding files as they
// change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitvc/dirops"
	"github.com/t7a/pitvc/index"
)

// Watcher re-adds files below a directory to a handle's index whenever
// they are written or created.
type Watcher struct {
	Handle *index.Handle
	Dir    *dirops.Dir
	// Ignore lists directory names that are never watched.
	Ignore []string
	// TrackedOnly restricts re-adding to names already in the index.
	TrackedOnly bool
	// Flush writes the index after every add.
	Flush bool
	// OnAdd, if set, is called after each successful add.
	OnAdd func(index.Entry)

	watcher *fsnotify.Watcher
}

// Start creates the underlying fsnotify watcher and registers every
// directory below w.Dir that isn't ignored.
func (w *Watcher) Start() (err error) {
	defer Return(&err)
	Assert(w.Handle != nil, "watcher has no handle")
	Assert(w.Dir != nil, "watcher has no dir")

	w.watcher, err = fsnotify.NewWatcher()
	Ck(err)

	root := w.Dir.Abs(".")
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && w.ignored(info.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
	if err != nil {
		w.watcher.Close()
		return
	}
	log.Debugf("watching %s", root)
	return
}

// Run handles events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) (err error) {
	Assert(w.watcher != nil, "watcher not started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch: %v", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		// gone again before we got to it
		log.Debugf("watch: %v", err)
		return
	}
	rel, err := w.Dir.Rel(ev.Name)
	if err != nil {
		log.Debugf("watch: %v", err)
		return
	}
	for _, part := range strings.Split(rel, "/") {
		if w.ignored(part) {
			return
		}
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			err = w.watcher.Add(ev.Name)
			if err != nil {
				log.Errorf("watch %s: %v", rel, err)
			}
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if w.TrackedOnly {
		err = w.Handle.Update(func(ix *index.Index) error {
			_, err := ix.Hash(rel)
			return err
		})
		if err != nil {
			return
		}
	}
	e, err := w.Handle.Add(rel)
	if err != nil {
		log.Errorf("watch: %v", err)
		return
	}
	log.Debugf("watch: %s %s", ev.Op, e)
	if w.Flush {
		err = w.Handle.Flush()
		if err != nil {
			log.Errorf("watch: %v", err)
			return
		}
	}
	if w.OnAdd != nil {
		w.OnAdd(e)
	}
}

func (w *Watcher) ignored(name string) bool {
	for _, ig := range w.Ignore {
		if name == ig {
			return true
		}
	}
	return false
}
