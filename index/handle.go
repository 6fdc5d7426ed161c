package index

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitvc/hasher"
)

// Options configure Open.  Path is required; the rest have usable zero
// values (ByName, Text, no lock, default hasher, current directory).
type Options struct {
	Path        string
	Orientation Orientation
	Format      Format
	Lock        bool
	Strict      bool
	Hasher      hasher.Hasher
	Source      Source
}

// Handle owns an index loaded from a backing file.  Flush writes the
// whole index back, replacing the file atomically; Close flushes one
// last time and gives up ownership.  Move hands ownership to a new
// Handle and leaves the old one inert.  Handles must not be copied.
//
// Handle methods are safe for concurrent use.  Two handles on the same
// path race unless both were opened with Lock, in which case the second
// Open fails with a *LockedError.
type Handle struct {
	mu     sync.Mutex
	path   string
	format Format
	ix     *Index
	lock   *flock.Flock
}

// Open loads the index stored at opts.Path.  A missing file yields an
// empty index.
func Open(opts Options) (h *Handle, err error) {
	defer Return(&err)
	ErrnoIf(opts.Path == "", syscall.EINVAL, "empty index path")

	format, err := ParseFormat(string(opts.Format))
	Ck(err)

	h = &Handle{
		path:   opts.Path,
		format: format,
		ix:     New(opts.Orientation).With(opts.Hasher, opts.Source),
	}

	if opts.Lock {
		err = mkdir(filepath.Dir(h.path))
		Ck(err)
		lock := flock.New(h.path + ".lock")
		ok, err := lock.TryLock()
		Ck(err)
		if !ok {
			return nil, &LockedError{Path: h.path}
		}
		h.lock = lock
	}

	err = h.load(opts.Strict)
	if err != nil {
		h.unlock()
		return nil, err
	}
	log.Debugf("opened %s: %d entries by %s", h.path, h.ix.Len(), h.ix.orient)
	return h, nil
}

func (h *Handle) load(strict bool) (err error) {
	fh, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return
	}
	defer fh.Close()

	switch h.format {
	case Msgpack:
		err = h.ix.DecodeSnapshot(fh)
	default:
		var opts []DecodeOption
		if strict {
			opts = append(opts, Strict())
		}
		err = h.ix.Decode(fh, opts...)
	}
	if err != nil {
		return errors.Wrapf(err, "load %s", h.path)
	}
	return
}

// Path returns the backing file, or "" once the handle has been closed
// or moved.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Index returns the owned index.  Callers sharing the handle with other
// goroutines should use Update instead.
func (h *Handle) Index() *Index {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ix
}

// Update calls fn with the owned index while holding the handle's
// lock.
func (h *Handle) Update(fn func(ix *Index) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.ix)
}

// Add hashes name and records it in the owned index, replacing any
// hash recorded earlier for name (see Index.Track).
func (h *Handle) Add(name string) (e Entry, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ix.Track(name)
}

// Flush writes the whole index to the backing file, replacing its
// contents.  Flush can be called any number of times.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flush()
}

func (h *Handle) flush() (err error) {
	if h.path == "" {
		return &os.PathError{Op: "flush", Path: h.path, Err: os.ErrClosed}
	}

	err = mkdir(filepath.Dir(h.path))
	if err != nil {
		return
	}
	pf, err := renameio.TempFile("", h.path)
	if err != nil {
		return
	}
	defer pf.Cleanup()

	err = pf.Chmod(0644)
	if err != nil {
		return
	}
	err = h.encode(pf)
	if err != nil {
		return errors.Wrapf(err, "flush %s", h.path)
	}
	err = pf.CloseAtomicallyReplace()
	if err != nil {
		return
	}
	log.Debugf("flushed %d entries to %s", h.ix.Len(), h.path)
	return
}

func (h *Handle) encode(w io.Writer) error {
	switch h.format {
	case Msgpack:
		return EncodeSnapshot(w, h.ix)
	default:
		return Encode(w, h.ix)
	}
}

// Close flushes the index and releases the handle.  The flush error,
// if any, is returned; the handle is released either way.  Closing a
// closed or moved handle does nothing.
func (h *Handle) Close() (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.path == "" {
		return nil
	}
	err = h.flush()
	if err != nil {
		log.Errorf("close %s: %v", h.path, err)
	}
	uerr := h.unlock()
	if err == nil {
		err = uerr
	}
	h.path = ""
	return
}

// Move returns a new Handle that owns h's index, backing file and lock.
// h is left with an empty index and no backing file, so closing it
// writes nothing.
func (h *Handle) Move() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := &Handle{
		path:   h.path,
		format: h.format,
		ix:     h.ix,
		lock:   h.lock,
	}
	h.ix = h.ix.empty(h.ix.orient)
	h.path = ""
	h.lock = nil
	return out
}

func (h *Handle) unlock() (err error) {
	if h.lock == nil {
		return
	}
	err = h.lock.Unlock()
	h.lock = nil
	return
}

func mkdir(dir string) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
	}
	return
}
