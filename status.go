package pitvc

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/t7a/pitvc/index"
)

// State is the condition of one file in the working tree relative to
// the index.
type State int

const (
	Untracked State = iota
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Untracked:
		return "untracked"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Change is a file whose content doesn't match the index.
type Change struct {
	Name  string
	State State
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %s", c.State, c.Name)
}

// Status compares the working tree against the index and returns every
// file that is untracked, modified, or deleted, sorted by name.  Files
// whose content matches the recorded hash are left out.
func (repo *Repo) Status() (changes []Change, err error) {
	files, err := repo.Files.Walk(".", repo.Config.Ignore...)
	if err != nil {
		return
	}
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f] = true
	}

	var found []Change
	err = repo.Index.Update(func(ix *index.Index) error {
		tracked := make(map[string]bool, ix.Len())
		for e := range ix.All() {
			if tracked[e.Name] {
				// ByHash index with several hashes for one name
				continue
			}
			tracked[e.Name] = true
			if !onDisk[e.Name] {
				found = append(found, Change{Name: e.Name, State: Deleted})
				continue
			}
			changed, err := ix.Changed(e.Name)
			if err != nil {
				return errors.Wrapf(err, "status %s", e.Name)
			}
			if changed {
				found = append(found, Change{Name: e.Name, State: Modified})
			}
		}
		for _, f := range files {
			if !tracked[f] {
				found = append(found, Change{Name: f, State: Untracked})
			}
		}
		return nil
	})
	if err != nil {
		return
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}
