package pitvc

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitvc/config"
	"github.com/t7a/pitvc/dirops"
	"github.com/t7a/pitvc/index"
)

// Repo is a working tree with its metadata directory.  Dir is the
// root of the tree.
type Repo struct {
	Dir    string
	Config *config.Config
	Files  *dirops.Dir
	Index  *index.Handle
}

type NotRepoError struct {
	Dir string
}

func (e *NotRepoError) Error() string {
	return fmt.Sprintf("not a repository: %s", e.Dir)
}

type ExistsError struct {
	Dir string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("repository already exists: %s", e.Dir)
}

// Create initializes the metadata directory under repo.Dir and opens
// the new repository.  repo.Config, if set, is saved in place of the
// default configuration.
func (repo Repo) Create() (out *Repo, err error) {
	defer Return(&err)

	dir := filepath.Clean(repo.Dir)
	meta := filepath.Join(dir, config.Dir)
	if canstat(meta) {
		return nil, &ExistsError{Dir: dir}
	}

	cfg := repo.Config
	if cfg == nil {
		cfg = config.Default()
	}
	err = cfg.Validate()
	Ck(err)

	err = mkdir(filepath.Join(meta, snapshotsDir))
	Ck(err)
	err = cfg.Save(config.Path(dir))
	Ck(err)

	log.Debugf("created repository in %s", dir)
	return Open(dir)
}

// Open loads the configuration and index of the repository rooted at
// dir.  The caller must Close the repository to write the index back.
func Open(dir string) (repo *Repo, err error) {
	dir = filepath.Clean(dir)
	cfgpath := config.Path(dir)
	if !canstat(cfgpath) {
		return nil, &NotRepoError{Dir: dir}
	}
	cfg, err := config.Load(cfgpath)
	if err != nil {
		return
	}

	repo = &Repo{Dir: dir, Config: cfg}
	repo.Files = dirops.Dir{}.New(dir)
	opts, err := cfg.Options(dir, repo.Files)
	if err != nil {
		return nil, err
	}
	repo.Index, err = index.Open(opts)
	if err != nil {
		return nil, err
	}
	return
}

// Close writes the index back and releases it.
func (repo *Repo) Close() error {
	return repo.Index.Close()
}

// Find walks up from dir to the nearest directory containing a
// repository and returns that directory.
func Find(dir string) (root string, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return
	}
	for d := dir; ; d = filepath.Dir(d) {
		if canstat(config.Path(d)) {
			return d, nil
		}
		if filepath.Dir(d) == d {
			break
		}
	}
	return "", &NotRepoError{Dir: dir}
}

// Add hashes each named file and records it in the index.  Names are
// relative to the repository root; a directory adds every file below
// it that isn't ignored.
func (repo *Repo) Add(names ...string) (entries []index.Entry, err error) {
	for _, name := range names {
		var files []string
		files, err = repo.expand(name)
		if err != nil {
			return
		}
		for _, file := range files {
			var e index.Entry
			e, err = repo.Index.Add(file)
			if err != nil {
				return
			}
			entries = append(entries, e)
		}
	}
	return
}

// expand returns name itself, or the files below it if name is a
// directory.
func (repo *Repo) expand(name string) (files []string, err error) {
	name = filepath.ToSlash(filepath.Clean(name))
	info, err := os.Stat(repo.Files.Abs(name))
	if err != nil || !info.IsDir() {
		// let Add report unreadable files
		return []string{name}, nil
	}
	paths, err := repo.Files.Walk(name, repo.Config.Ignore...)
	if err != nil {
		return
	}
	for _, path := range paths {
		if name != "." {
			path = name + "/" + path
		}
		files = append(files, path)
	}
	return
}

// Remove stops tracking the named files.  The files themselves are
// left alone.
func (repo *Repo) Remove(names ...string) (err error) {
	return repo.Index.Update(func(ix *index.Index) error {
		for _, name := range names {
			name = filepath.ToSlash(filepath.Clean(name))
			keys := []string{name}
			if ix.Orientation() == index.ByHash {
				// an index written by other tools may hold more than
				// one hash per name
				keys = ix.Secondaries(name)
			}
			removed := false
			for _, key := range keys {
				if ix.Remove(key) {
					removed = true
				}
			}
			if !removed {
				return &index.KeyNotFoundError{Key: name, By: index.ByName}
			}
		}
		return nil
	})
}

// Lookup returns the hash recorded for name.
func (repo *Repo) Lookup(name string) (hash string, err error) {
	err = repo.Index.Update(func(ix *index.Index) (err error) {
		hash, err = ix.Hash(filepath.ToSlash(filepath.Clean(name)))
		return
	})
	return
}

// Which returns every tracked name whose content has the given hash.
func (repo *Repo) Which(hash string) (names []string, err error) {
	err = repo.Index.Update(func(ix *index.Index) error {
		if ix.Orientation() == index.ByName {
			names = ix.Secondaries(hash)
		} else if name, err := ix.LookupPrimary(hash); err == nil {
			names = []string{name}
		}
		if len(names) == 0 {
			return &index.KeyNotFoundError{Key: hash, By: index.ByHash}
		}
		return nil
	})
	return
}

// Entries returns the tracked entries in index order.
func (repo *Repo) Entries() (entries []index.Entry) {
	repo.Index.Update(func(ix *index.Index) error {
		entries = ix.Entries()
		return nil
	})
	return
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mkdir(dir string) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
	}
	return
}
