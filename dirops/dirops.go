// Package dirops wraps the handful of directory operations the index
// and repository layers need: listing, copying, emptying and removing
// directories, plus reading files under a base directory.
package dirops

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Dir resolves relative names against a base directory.  An empty Base
// means the current directory.
type Dir struct {
	Base string
}

func (d Dir) New(base string) *Dir {
	d.Base = filepath.Clean(base)
	return &d
}

// Abs returns name joined to the base directory.  Absolute names are
// returned unchanged.
func (d *Dir) Abs(name string) string {
	if filepath.IsAbs(name) || d.Base == "" {
		return name
	}
	return filepath.Join(d.Base, name)
}

// Rel returns path relative to the base directory, using forward
// slashes.
func (d *Dir) Rel(path string) (rel string, err error) {
	base := d.Base
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	absbase, err := filepath.Abs(base)
	if err != nil {
		return
	}
	rel, err = filepath.Rel(absbase, abs)
	if err != nil {
		return
	}
	return filepath.ToSlash(rel), nil
}

// ReadFile returns the full content of name.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	return ioutil.ReadFile(d.Abs(name))
}

// Exists reports whether name can be stat'd.
func (d *Dir) Exists(name string) bool {
	return canstat(d.Abs(name))
}

// ListFiles returns the sorted names of the regular files in dir.
func (d *Dir) ListFiles(dir string) (names []string, err error) {
	return d.list(dir, false)
}

// ListAll returns the sorted names of the files and subdirectories in
// dir.  "." and ".." are never included.
func (d *Dir) ListAll(dir string) (names []string, err error) {
	return d.list(dir, true)
}

func (d *Dir) list(dir string, dirs bool) (names []string, err error) {
	infos, err := ioutil.ReadDir(d.Abs(dir))
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		mode := info.Mode()
		switch {
		case mode.IsRegular():
		case dirs && mode.IsDir():
		default:
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return
}

// Walk returns the slash-separated paths, relative to dir, of every
// regular file below dir.  Subdirectories named in skip are not
// entered.
func (d *Dir) Walk(dir string, skip ...string) (paths []string, err error) {
	root := d.Abs(dir)
	skipped := make(map[string]bool)
	for _, s := range skip {
		skipped[s] = true
	}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && skipped[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(paths)
	return
}

// CopyFile copies src to dst, replacing dst if it exists.
func (d *Dir) CopyFile(src, dst string) (err error) {
	err = fileutils.CopyFile(d.Abs(dst), d.Abs(src))
	if err != nil {
		return errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return
}

// CopyDirectory creates dst if needed and copies every regular file in
// src into it.  Subdirectories are not copied, nor are files whose
// names match one of the skip patterns (filepath.Match syntax).
func (d *Dir) CopyDirectory(src, dst string, skip ...string) (err error) {
	defer Return(&err)
	err = mkdir(d.Abs(dst))
	Ck(err)
	files, err := d.ListFiles(src)
	Ck(err)
	n := 0
	for _, file := range files {
		var skipped bool
		skipped, err = matchAny(skip, file)
		Ck(err)
		if skipped {
			continue
		}
		err = d.CopyFile(filepath.Join(src, file), filepath.Join(dst, file))
		Ck(err)
		n++
	}
	log.Debugf("copied %d files from %s to %s", n, src, dst)
	return
}

func matchAny(patterns []string, name string) (bool, error) {
	for _, pat := range patterns {
		ok, err := filepath.Match(pat, name)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// EmptyDirectory removes every regular file in dir, stopping at the
// first failure.
func (d *Dir) EmptyDirectory(dir string) (err error) {
	files, err := d.ListFiles(dir)
	if err != nil {
		return
	}
	for _, file := range files {
		err = os.Remove(d.Abs(filepath.Join(dir, file)))
		if err != nil {
			return
		}
	}
	return
}

// RemoveDirectory removes dir and everything below it.  Unlike rmdir it
// doesn't fail on non-empty directories.  A missing dir is an error.
func (d *Dir) RemoveDirectory(dir string) (err error) {
	abs := d.Abs(dir)
	if !canstat(abs) {
		return &os.PathError{Op: "remove", Path: abs, Err: os.ErrNotExist}
	}
	return os.RemoveAll(abs)
}

// Mkdir creates dir and any missing parents.
func (d *Dir) Mkdir(dir string) error {
	return mkdir(d.Abs(dir))
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mkdir(dir string) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return
		}
	}
	return
}
