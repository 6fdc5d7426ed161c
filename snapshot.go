package pitvc

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitvc/config"
	"github.com/t7a/pitvc/index"
)

const snapshotsDir = "snapshots"

type SnapshotError struct {
	Name   string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s: %s", e.Name, e.Reason)
}

// snapdir returns the repo-relative directory holding snapshot name.
// Copies of the tracked files go under files/, and the top-level
// metadata files (config and index) under meta/.
func snapdir(name string) string {
	return path.Join(config.Dir, snapshotsDir, name)
}

func validSnapshotName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && filepath.Base(name) == name
}

// Snapshot copies every tracked file into .pit/snapshots/<name>/files,
// keeping its path relative to the root, and the flushed index and
// config into .pit/snapshots/<name>/meta.  Files are copied as they are
// on disk now; run Status first to see whether that differs from the
// index.  A tracked file that no longer exists fails the snapshot.
//
// The snapshot is built in a hidden sibling directory and renamed into
// place once complete, so taking a snapshot under an existing name
// replaces it only on success.
func (repo *Repo) Snapshot(name string) (entries []index.Entry, err error) {
	defer Return(&err)
	if !validSnapshotName(name) {
		return nil, &SnapshotError{Name: name, Reason: "invalid name"}
	}
	parent := path.Join(config.Dir, snapshotsDir)
	err = repo.Files.Mkdir(parent)
	Ck(err)
	tmpabs, err := os.MkdirTemp(repo.Files.Abs(parent), "."+name+"-")
	Ck(err)
	// gone already once the snapshot is in place
	defer os.RemoveAll(tmpabs)
	tmp := path.Join(parent, filepath.Base(tmpabs))

	err = repo.Index.Flush()
	Ck(err)
	err = repo.Files.CopyDirectory(config.Dir, path.Join(tmp, "meta"), "*.lock")
	Ck(err)

	entries = repo.Entries()
	for _, e := range entries {
		if !repo.Files.Exists(e.Name) {
			return nil, &SnapshotError{Name: name, Reason: "tracked file missing: " + e.Name}
		}
		dst := path.Join(tmp, "files", e.Name)
		err = repo.Files.Mkdir(path.Dir(dst))
		Ck(err)
		err = repo.Files.CopyFile(e.Name, dst)
		Ck(err)
	}

	err = swapDir(tmpabs, repo.Files.Abs(snapdir(name)))
	Ck(err)
	log.Debugf("snapshot %s: %d files", name, len(entries))
	return
}

// swapDir moves src to dst, replacing any existing dst.  The old dst
// is put back if the move fails.
func swapDir(src, dst string) (err error) {
	if !canstat(dst) {
		return os.Rename(src, dst)
	}
	old := src + ".old"
	err = os.Rename(dst, old)
	if err != nil {
		return
	}
	err = os.Rename(src, dst)
	if err != nil {
		if rerr := os.Rename(old, dst); rerr != nil {
			log.Errorf("restore %s: %v", dst, rerr)
		}
		return
	}
	return os.RemoveAll(old)
}

// Snapshots returns the names of the existing snapshots in ascending
// order.
func (repo *Repo) Snapshots() (names []string, err error) {
	dir := path.Join(config.Dir, snapshotsDir)
	if !repo.Files.Exists(dir) {
		return
	}
	all, err := repo.Files.ListAll(dir)
	if err != nil {
		return
	}
	for _, name := range all {
		// skip snapshots still being built
		if validSnapshotName(name) {
			names = append(names, name)
		}
	}
	return
}

// Restore copies the files of snapshot name back into the working tree
// and records them in the index.  Files that are not in the snapshot
// are left alone.
func (repo *Repo) Restore(name string) (entries []index.Entry, err error) {
	defer Return(&err)
	dir := path.Join(snapdir(name), "files")
	if !validSnapshotName(name) || !repo.Files.Exists(snapdir(name)) {
		return nil, &SnapshotError{Name: name, Reason: "no such snapshot"}
	}
	if !repo.Files.Exists(dir) {
		// nothing was tracked
		return
	}
	files, err := repo.Files.Walk(dir)
	Ck(err)
	for _, f := range files {
		err = repo.Files.Mkdir(path.Dir(f))
		Ck(err)
		err = repo.Files.CopyFile(path.Join(dir, f), f)
		Ck(err)
		var e index.Entry
		e, err = repo.Index.Add(f)
		Ck(err)
		entries = append(entries, e)
	}
	log.Debugf("restore %s: %d files", name, len(entries))
	return
}

// DropSnapshot deletes snapshot name.
func (repo *Repo) DropSnapshot(name string) (err error) {
	dir := snapdir(name)
	if !validSnapshotName(name) || !repo.Files.Exists(dir) {
		return &SnapshotError{Name: name, Reason: "no such snapshot"}
	}
	return repo.Files.RemoveDirectory(dir)
}
