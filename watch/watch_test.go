package watch

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/t7a/pitvc/dirops"
	"github.com/t7a/pitvc/index"
)

const worldHash = "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7"

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func setup(t *testing.T) (*dirops.Dir, *index.Handle) {
	d := dirops.Dir{}.New(t.TempDir())
	h, err := index.Open(index.Options{Path: d.Abs(".pit/index"), Source: d})
	tassert(t, err == nil, "%v", err)
	return d, h
}

func write(t *testing.T, d *dirops.Dir, name, content string) {
	t.Helper()
	err := os.MkdirAll(filepath.Dir(d.Abs(name)), 0755)
	tassert(t, err == nil, "%v", err)
	err = ioutil.WriteFile(d.Abs(name), []byte(content), 0644)
	tassert(t, err == nil, "%v", err)
}

// waitFor returns the first added entry for name with the given hash,
// or fails after a timeout.  Writes can show up as several events, the
// first of which may see a truncated file.
func waitFor(t *testing.T, added chan index.Entry, name, hash string) index.Entry {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-added:
			if e.Name == name && e.Hash == hash {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func exists(h *index.Handle, name string) (ok bool) {
	h.Update(func(ix *index.Index) error {
		ok = ix.Exists(name)
		return nil
	})
	return
}

func start(t *testing.T, w *Watcher) (added chan index.Entry, stop func()) {
	added = make(chan index.Entry, 100)
	w.OnAdd = func(e index.Entry) {
		added <- e
	}
	err := w.Start()
	tassert(t, err == nil, "%v", err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- w.Run(ctx)
	}()
	stop = func() {
		cancel()
		<-done
		w.Close()
	}
	return
}

func TestWatchAdd(t *testing.T) {
	d, h := setup(t)
	defer h.Close()
	write(t, d, "a.txt", "hello")

	w := &Watcher{Handle: h, Dir: d, Ignore: []string{".pit"}, Flush: true}
	added, stop := start(t, w)
	defer stop()

	write(t, d, "a.txt", "world")
	waitFor(t, added, "a.txt", worldHash)

	var got string
	err := h.Update(func(ix *index.Index) (err error) {
		got, err = ix.LookupPrimary("a.txt")
		return
	})
	tassert(t, err == nil, "%v", err)
	tassert(t, got == worldHash, "got %q", got)

	buf, err := ioutil.ReadFile(h.Path())
	tassert(t, err == nil, "%v", err)
	tassert(t, string(buf) == "a.txt,"+worldHash+"\n", "index file %q", string(buf))
}

func TestWatchSubdir(t *testing.T) {
	d, h := setup(t)
	defer h.Close()

	w := &Watcher{Handle: h, Dir: d, Ignore: []string{".pit"}}
	added, stop := start(t, w)
	defer stop()

	err := os.Mkdir(d.Abs("sub"), 0755)
	tassert(t, err == nil, "%v", err)
	// give the watcher a chance to register the new directory
	time.Sleep(200 * time.Millisecond)
	write(t, d, "sub/b.txt", "world")
	waitFor(t, added, "sub/b.txt", worldHash)
	tassert(t, exists(h, "sub/b.txt"), "sub/b.txt not in index")
}

func TestWatchTrackedOnly(t *testing.T) {
	d, h := setup(t)
	defer h.Close()
	write(t, d, "tracked", "hello")
	_, err := h.Add("tracked")
	tassert(t, err == nil, "%v", err)

	w := &Watcher{Handle: h, Dir: d, Ignore: []string{".pit"}, TrackedOnly: true}
	added, stop := start(t, w)
	defer stop()

	write(t, d, "untracked", "hello")
	write(t, d, "tracked", "world")
	waitFor(t, added, "tracked", worldHash)
	tassert(t, !exists(h, "untracked"), "untracked file was added")
}
