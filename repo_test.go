package pitvc

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/t7a/pitvc/config"
	"github.com/t7a/pitvc/index"
)

const (
	helloHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	sameHash  = "0967115f2813a3541eaef77de9d9d5773f1c0c04314b0bbfe4ff3b3b1c55b5d5"
	worldHash = "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func tmpdir(t *testing.T) (dir string) {
	var err error
	if os.Getenv("DEBUG") == "1" {
		dir, err = ioutil.TempDir("", "pitvc")
		tassert(t, err == nil, "%#v", err)
		fmt.Println(dir)
		// manual cleanup
	} else {
		dir = t.TempDir()
		// automatic cleanup
	}
	return
}

// setup creates a repository in a fresh directory.
func setup(t *testing.T, cfg *config.Config) *Repo {
	t.Helper()
	repo, err := Repo{Dir: tmpdir(t), Config: cfg}.Create()
	tassert(t, err == nil, "Create: %v", err)
	return repo
}

func mkfile(t *testing.T, repo *Repo, name, content string) {
	t.Helper()
	path := repo.Files.Abs(name)
	err := os.MkdirAll(filepath.Dir(path), 0755)
	tassert(t, err == nil, "%v", err)
	err = ioutil.WriteFile(path, []byte(content), 0644)
	tassert(t, err == nil, "%v", err)
}

func reopen(t *testing.T, repo *Repo) *Repo {
	t.Helper()
	err := repo.Close()
	tassert(t, err == nil, "Close: %v", err)
	repo, err = Open(repo.Dir)
	tassert(t, err == nil, "Open: %v", err)
	return repo
}

func TestCreate(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	tassert(t, repo.Files.Exists(".pit/config.yaml"), "no config")
	tassert(t, repo.Files.Exists(".pit/snapshots"), "no snapshots dir")
	tassert(t, repo.Config.Index.Algo == "sha256", "algo %q", repo.Config.Index.Algo)

	_, err := Repo{Dir: repo.Dir}.Create()
	var ee *ExistsError
	tassert(t, errors.As(err, &ee), "expected ExistsError, got %v", err)
}

func TestCreateBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Algo = "md5"
	_, err := Repo{Dir: tmpdir(t), Config: cfg}.Create()
	tassert(t, err != nil, "expected error for unknown algo")
}

func TestOpenNotRepo(t *testing.T) {
	_, err := Open(tmpdir(t))
	var ne *NotRepoError
	tassert(t, errors.As(err, &ne), "expected NotRepoError, got %v", err)
}

func TestFind(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	mkfile(t, repo, "a/b/c.txt", "hello")

	root, err := Find(repo.Files.Abs("a/b"))
	tassert(t, err == nil, "%v", err)
	want, err := filepath.Abs(repo.Dir)
	tassert(t, err == nil, "%v", err)
	tassert(t, root == want, "got %q want %q", root, want)

	_, err = Find(tmpdir(t))
	var ne *NotRepoError
	tassert(t, errors.As(err, &ne), "expected NotRepoError, got %v", err)
}

func TestAddLookup(t *testing.T) {
	repo := setup(t, nil)
	mkfile(t, repo, "a.txt", "hello")
	entries, err := repo.Add("a.txt")
	tassert(t, err == nil, "%v", err)
	tassert(t, len(entries) == 1 && entries[0].Hash == helloHash, "got %v", entries)

	repo = reopen(t, repo)
	defer repo.Close()
	hash, err := repo.Lookup("a.txt")
	tassert(t, err == nil, "%v", err)
	tassert(t, hash == helloHash, "got %q", hash)

	buf, err := ioutil.ReadFile(repo.Files.Abs(".pit/index"))
	tassert(t, err == nil, "%v", err)
	tassert(t, string(buf) == "a.txt,"+helloHash+"\n", "got %q", buf)
}

func TestAddMissing(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	_, err := repo.Add("nope")
	var fe *index.FileNotReadableError
	tassert(t, errors.As(err, &fe), "expected FileNotReadableError, got %v", err)
	tassert(t, len(repo.Entries()) == 0, "index changed")
}

func TestAddDirectory(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	mkfile(t, repo, "a.txt", "hello")
	mkfile(t, repo, "sub/b.txt", "world")
	mkfile(t, repo, ".git/HEAD", "ignored")

	entries, err := repo.Add(".")
	tassert(t, err == nil, "%v", err)
	tassert(t, len(entries) == 2, "got %v", entries)
	tassert(t, entries[0].Name == "a.txt" && entries[1].Name == "sub/b.txt", "got %v", entries)

	entries, err = repo.Add("sub")
	tassert(t, err == nil, "%v", err)
	tassert(t, len(entries) == 1 && entries[0].Name == "sub/b.txt", "got %v", entries)
}

func TestRemove(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	mkfile(t, repo, "a.txt", "hello")
	mkfile(t, repo, "b.txt", "world")
	_, err := repo.Add("a.txt", "b.txt")
	tassert(t, err == nil, "%v", err)

	err = repo.Remove("a.txt")
	tassert(t, err == nil, "%v", err)
	_, err = repo.Lookup("a.txt")
	var ke *index.KeyNotFoundError
	tassert(t, errors.As(err, &ke), "expected KeyNotFoundError, got %v", err)
	tassert(t, repo.Files.Exists("a.txt"), "file was deleted")

	err = repo.Remove("a.txt")
	tassert(t, errors.As(err, &ke), "expected KeyNotFoundError, got %v", err)
}

func TestWhich(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	mkfile(t, repo, "a.txt", "same")
	mkfile(t, repo, "b.txt", "same")
	mkfile(t, repo, "c.txt", "hello")
	_, err := repo.Add("a.txt", "b.txt", "c.txt")
	tassert(t, err == nil, "%v", err)

	names, err := repo.Which(sameHash)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(names) == 2 && names[0] == "a.txt" && names[1] == "b.txt", "got %v", names)

	_, err = repo.Which(worldHash)
	var ke *index.KeyNotFoundError
	tassert(t, errors.As(err, &ke), "expected KeyNotFoundError, got %v", err)
}

func TestByHashRepo(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Orientation = "hash"
	repo := setup(t, cfg)
	mkfile(t, repo, "a.txt", "same")
	mkfile(t, repo, "b.txt", "same")
	_, err := repo.Add("a.txt", "b.txt")
	tassert(t, err == nil, "%v", err)

	// one name per hash; the later add wins
	names, err := repo.Which(sameHash)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(names) == 1 && names[0] == "b.txt", "got %v", names)

	repo = reopen(t, repo)
	defer repo.Close()
	hash, err := repo.Lookup("b.txt")
	tassert(t, err == nil && hash == sameHash, "got %q %v", hash, err)

	err = repo.Remove("b.txt")
	tassert(t, err == nil, "%v", err)
	tassert(t, len(repo.Entries()) == 0, "got %v", repo.Entries())
}

func TestByHashReAdd(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Orientation = "hash"
	repo := setup(t, cfg)
	defer repo.Close()
	mkfile(t, repo, "a.txt", "hello")
	_, err := repo.Add("a.txt")
	tassert(t, err == nil, "%v", err)

	mkfile(t, repo, "a.txt", "world")
	_, err = repo.Add("a.txt")
	tassert(t, err == nil, "%v", err)

	hash, err := repo.Lookup("a.txt")
	tassert(t, err == nil, "%v", err)
	tassert(t, hash == worldHash, "got stale hash %q", hash)
	changes, err := repo.Status()
	tassert(t, err == nil, "%v", err)
	tassert(t, len(changes) == 0, "got %v", changes)
	tassert(t, len(repo.Entries()) == 1, "got %v", repo.Entries())
}

func TestByHashRemoveAll(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Orientation = "hash"
	repo := setup(t, cfg)
	err := repo.Close()
	tassert(t, err == nil, "%v", err)
	// an index holding two hashes for one name
	mkfile(t, repo, ".pit/index", "a.txt,"+helloHash+"\na.txt,"+worldHash+"\n")
	repo, err = Open(repo.Dir)
	tassert(t, err == nil, "%v", err)
	defer repo.Close()
	tassert(t, len(repo.Entries()) == 2, "got %v", repo.Entries())
	mkfile(t, repo, "a.txt", "world")

	changes, err := repo.Status()
	tassert(t, err == nil, "%v", err)
	tassert(t, len(changes) <= 1, "name reported more than once: %v", changes)

	err = repo.Remove("a.txt")
	tassert(t, err == nil, "%v", err)
	tassert(t, len(repo.Entries()) == 0, "got %v", repo.Entries())
	_, err = repo.Lookup("a.txt")
	var ke *index.KeyNotFoundError
	tassert(t, errors.As(err, &ke), "expected KeyNotFoundError, got %v", err)
}

func TestMsgpackRepo(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Format = "msgpack"
	repo := setup(t, cfg)
	mkfile(t, repo, "a.txt", "hello")
	_, err := repo.Add("a.txt")
	tassert(t, err == nil, "%v", err)

	repo = reopen(t, repo)
	defer repo.Close()
	hash, err := repo.Lookup("a.txt")
	tassert(t, err == nil && hash == helloHash, "got %q %v", hash, err)
}

func TestRepoLocked(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	_, err := Open(repo.Dir)
	var le *index.LockedError
	tassert(t, errors.As(err, &le), "expected LockedError, got %v", err)
}

func TestStatus(t *testing.T) {
	repo := setup(t, nil)
	defer repo.Close()
	mkfile(t, repo, "a.txt", "hello")
	mkfile(t, repo, "b.txt", "world")
	mkfile(t, repo, "c.txt", "same")
	_, err := repo.Add("a.txt", "b.txt", "c.txt")
	tassert(t, err == nil, "%v", err)

	changes, err := repo.Status()
	tassert(t, err == nil, "%v", err)
	tassert(t, len(changes) == 0, "got %v", changes)

	mkfile(t, repo, "a.txt", "changed")
	err = os.Remove(repo.Files.Abs("b.txt"))
	tassert(t, err == nil, "%v", err)
	mkfile(t, repo, "d.txt", "new")
	// rewriting the same bytes isn't a change
	mkfile(t, repo, "c.txt", "same")

	changes, err = repo.Status()
	tassert(t, err == nil, "%v", err)
	want := []Change{
		{Name: "a.txt", State: Modified},
		{Name: "b.txt", State: Deleted},
		{Name: "d.txt", State: Untracked},
	}
	tassert(t, len(changes) == len(want), "got %v", changes)
	for i := range want {
		tassert(t, changes[i] == want[i], "got %v want %v", changes[i], want[i])
	}
	tassert(t, changes[0].String() == "modified: a.txt", "got %q", changes[0].String())
}
