package index

import (
	"fmt"
	"iter"
	"syscall"

	"github.com/google/btree"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitvc/dirops"
	"github.com/t7a/pitvc/hasher"
)

// Orientation selects which attribute of an entry is the primary key.
type Orientation int

const (
	ByName Orientation = iota
	ByHash
)

func (o Orientation) String() string {
	switch o {
	case ByName:
		return "name"
	case ByHash:
		return "hash"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// Opposite returns the other orientation.
func (o Orientation) Opposite() Orientation {
	if o == ByName {
		return ByHash
	}
	return ByName
}

// ParseOrientation accepts the strings produced by String.
func ParseOrientation(s string) (o Orientation, err error) {
	switch s {
	case "name", "":
		return ByName, nil
	case "hash":
		return ByHash, nil
	}
	return o, fmt.Errorf("%w: orientation %q", syscall.EINVAL, s)
}

// Entry is one tracked file.
type Entry struct {
	Name string `msgpack:"name"`
	Hash string `msgpack:"hash"`
}

func (e Entry) String() string {
	return e.Name + "," + e.Hash
}

// Source supplies file content to Add.  *dirops.Dir satisfies it.
type Source interface {
	ReadFile(name string) ([]byte, error)
	Exists(name string) bool
}

// pair is an entry seen through an orientation.  The primary tree is
// ordered by key; the reverse tree by val, then key.
type pair struct {
	key string
	val string
}

func byKey(a, b pair) bool {
	return a.key < b.key
}

func byVal(a, b pair) bool {
	if a.val != b.val {
		return a.val < b.val
	}
	return a.key < b.key
}

const degree = 32

// Index is a bidirectional map between names and hashes.  Lookups by
// either attribute take logarithmic time: the primary tree holds the
// entries by key and the reverse tree is kept in step with it on every
// mutation.  An Index is not safe for concurrent use; see Handle.
type Index struct {
	orient Orientation
	fwd    *btree.BTreeG[pair]
	rev    *btree.BTreeG[pair]
	hasher hasher.Hasher
	src    Source
}

// New returns an empty index.  Add hashes with the default algorithm
// and reads files relative to the current directory until With is
// called.
func New(orient Orientation) *Index {
	Assert(orient == ByName || orient == ByHash, "unknown orientation %d", orient)
	h, err := hasher.New(hasher.DefaultAlgo)
	Ck(err)
	return &Index{
		orient: orient,
		fwd:    btree.NewG(degree, byKey),
		rev:    btree.NewG(degree, byVal),
		hasher: h,
		src:    dirops.Dir{}.New(""),
	}
}

// With sets the hasher and file source used by Add.  It returns ix.
func (ix *Index) With(h hasher.Hasher, src Source) *Index {
	if h.Algo != "" {
		ix.hasher = h
	}
	if src != nil {
		ix.src = src
	}
	return ix
}

// Hasher returns the hasher used by Add.
func (ix *Index) Hasher() hasher.Hasher {
	return ix.hasher
}

// Orientation returns the primary-key attribute of ix.
func (ix *Index) Orientation() Orientation {
	return ix.orient
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	return ix.fwd.Len()
}

func (ix *Index) pair(e Entry) pair {
	if ix.orient == ByName {
		return pair{key: e.Name, val: e.Hash}
	}
	return pair{key: e.Hash, val: e.Name}
}

func (ix *Index) entry(p pair) Entry {
	if ix.orient == ByName {
		return Entry{Name: p.key, Hash: p.val}
	}
	return Entry{Name: p.val, Hash: p.key}
}

// empty returns a new index sharing ix's hasher and source.
func (ix *Index) empty(orient Orientation) *Index {
	return New(orient).With(ix.hasher, ix.src)
}

// Add reads the current content of name, hashes it, and stores the
// entry, replacing any entry with the same primary key.  File metadata
// is never consulted.
func (ix *Index) Add(name string) (e Entry, err error) {
	e, err = ix.read(name)
	if err != nil {
		return
	}
	ix.put(e)
	log.Debugf("add %s %s", e.Name, e.Hash)
	return
}

// Track is Add for a working tree.  In a ByHash index, Add keeps the
// entries recorded for name's earlier contents; Track drops them first
// so that each name has at most one hash.  In a ByName index the two
// are the same.
func (ix *Index) Track(name string) (e Entry, err error) {
	e, err = ix.read(name)
	if err != nil {
		return
	}
	if ix.orient == ByHash {
		for _, hash := range ix.Secondaries(name) {
			ix.Remove(hash)
		}
	}
	ix.put(e)
	log.Debugf("track %s %s", e.Name, e.Hash)
	return
}

// read hashes the current content of name.
func (ix *Index) read(name string) (e Entry, err error) {
	buf, err := ix.src.ReadFile(name)
	if err != nil {
		return e, &FileNotReadableError{Name: name, Err: err}
	}
	return Entry{Name: name, Hash: ix.hasher.Sum(buf)}, nil
}

// Changed reports whether the current content of name differs from the
// hash recorded for it.  A name that is no longer present is changed;
// a name that isn't tracked returns a *KeyNotFoundError.
func (ix *Index) Changed(name string) (changed bool, err error) {
	recorded, err := ix.Hash(name)
	if err != nil {
		return
	}
	if !ix.src.Exists(name) {
		return true, nil
	}
	buf, err := ix.src.ReadFile(name)
	if err != nil {
		return false, &FileNotReadableError{Name: name, Err: err}
	}
	return ix.hasher.Sum(buf) != recorded, nil
}

// Set stores the entry (name, hash) without touching the filesystem.
func (ix *Index) Set(name, hash string) {
	ix.put(Entry{Name: name, Hash: hash})
}

// put inserts e and keeps the reverse tree in step.
func (ix *Index) put(e Entry) (old Entry, replaced bool) {
	p := ix.pair(e)
	oldpair, replaced := ix.fwd.ReplaceOrInsert(p)
	if replaced {
		ix.rev.Delete(oldpair)
		old = ix.entry(oldpair)
	}
	ix.rev.ReplaceOrInsert(p)
	return
}

// Remove deletes the entry with primary key key.  It reports whether
// an entry was removed.
func (ix *Index) Remove(key string) bool {
	old, ok := ix.fwd.Delete(pair{key: key})
	if ok {
		ix.rev.Delete(old)
	}
	return ok
}

// Exists reports whether key is a primary key of ix.
func (ix *Index) Exists(key string) bool {
	return ix.fwd.Has(pair{key: key})
}

// LookupPrimary returns the value stored under the primary key key.
func (ix *Index) LookupPrimary(key string) (val string, err error) {
	p, ok := ix.fwd.Get(pair{key: key})
	if !ok {
		return "", &KeyNotFoundError{Key: key, By: ix.orient}
	}
	return p.val, nil
}

// LookupSecondary returns the primary key of the first entry, in
// ascending primary-key order, whose other attribute equals val.
func (ix *Index) LookupSecondary(val string) (key string, err error) {
	var found bool
	ix.rev.AscendGreaterOrEqual(pair{val: val}, func(p pair) bool {
		if p.val == val {
			key = p.key
			found = true
		}
		return false
	})
	if !found {
		return "", &KeyNotFoundError{Key: val, By: ix.orient.Opposite()}
	}
	return
}

// Secondaries returns every primary key whose other attribute equals
// val, in ascending order.  In a ByName index these are the names that
// share a content hash.
func (ix *Index) Secondaries(val string) (keys []string) {
	ix.rev.AscendGreaterOrEqual(pair{val: val}, func(p pair) bool {
		if p.val != val {
			return false
		}
		keys = append(keys, p.key)
		return true
	})
	return
}

// Hash returns the hash recorded for name, whatever the orientation.
func (ix *Index) Hash(name string) (string, error) {
	if ix.orient == ByName {
		return ix.LookupPrimary(name)
	}
	return ix.LookupSecondary(name)
}

// Name returns a name recorded for hash, whatever the orientation.
func (ix *Index) Name(hash string) (string, error) {
	if ix.orient == ByHash {
		return ix.LookupPrimary(hash)
	}
	return ix.LookupSecondary(hash)
}

// All returns the entries in ascending primary-key order.  The
// sequence can be ranged over any number of times; ix must not be
// modified while a range is in progress.
func (ix *Index) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		ix.fwd.Ascend(func(p pair) bool {
			return yield(ix.entry(p))
		})
	}
}

// Entries returns a copy of the entries in ascending primary-key
// order.
func (ix *Index) Entries() (entries []Entry) {
	entries = make([]Entry, 0, ix.Len())
	for e := range ix.All() {
		entries = append(entries, e)
	}
	return
}

// Convert returns a new index in the opposite orientation, built by
// re-inserting every entry of ix in iteration order.  When entries
// collide on the new primary key the last one inserted wins, so
// converting a ByName index whose names share a hash keeps only the
// greatest of those names.
func (ix *Index) Convert() *Index {
	out, _ := ix.convert()
	return out
}

// ConvertStrict is like Convert, but returns a *CollapseError naming
// the dropped entries if any collided.  The converted index is
// returned either way.
func (ix *Index) ConvertStrict() (out *Index, err error) {
	out, dropped := ix.convert()
	if len(dropped) > 0 {
		err = &CollapseError{Dropped: dropped}
	}
	return
}

func (ix *Index) convert() (out *Index, dropped []Entry) {
	out = ix.empty(ix.orient.Opposite())
	for e := range ix.All() {
		old, replaced := out.put(e)
		if replaced {
			dropped = append(dropped, old)
		}
	}
	if len(dropped) > 0 {
		log.Debugf("convert to %s dropped %d entries", out.orient, len(dropped))
	}
	return
}

// Equal reports whether ix and other have the same orientation and the
// same entries.
func (ix *Index) Equal(other *Index) bool {
	if ix.orient != other.orient || ix.Len() != other.Len() {
		return false
	}
	a := ix.Entries()
	b := other.Entries()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
