package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"

	pv "github.com/t7a/pitvc"
	"github.com/t7a/pitvc/config"
	"github.com/t7a/pitvc/hasher"
	"github.com/t7a/pitvc/index"
	"github.com/t7a/pitvc/watch"
)

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number gid N`.
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, p), f.Line, getGID())
	}
}

func getGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

type Opts struct {
	Init      bool
	Add       bool
	Rm        bool
	Hash      bool
	Lookup    bool
	Which     bool
	Ls        bool
	Status    bool
	Snapshot  bool
	Snapshots bool
	Restore   bool
	Drop      bool
	Watch     bool
	Algo      string `docopt:"--algo"`
	Format    string `docopt:"--format"`
	ByHash    bool   `docopt:"--by-hash"`
	Tracked   bool   `docopt:"--tracked"`
	File      []string
	Hashval   string `docopt:"<hash>"`
	Name      string
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `pitvc

Usage:
  pvc init [--algo=<algo>] [--format=<format>] [--by-hash]
  pvc add <file>...
  pvc rm <file>...
  pvc hash [--algo=<algo>] <file>...
  pvc lookup <file>...
  pvc which <hash>
  pvc ls [--by-hash]
  pvc status
  pvc snapshot <name>
  pvc snapshots
  pvc restore <name>
  pvc drop <name>
  pvc watch [--tracked]

Options:
  -h --help          Show this screen.
  --version          Show version.
  --algo=<algo>      Hash algorithm: sha256, sha512, or blake3.
  --format=<format>  Index file format: text or msgpack.
  --by-hash          Key the index (or the listing) by hash.
  --tracked          Only re-add files that are already tracked.

The repository root is $PITDIR if set, otherwise the nearest directory
at or above the current one that holds a .pit directory.
`
	parser := &docopt.Parser{OptionsFirst: false}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.0")
	if err != nil {
		log.Error(err)
		return 22
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debug(opts)

	if opts.Init {
		err = create(opts)
	} else if opts.Hash {
		err = hashFiles(opts.Algo, opts.File)
	} else {
		err = withRepo(func(repo *pv.Repo) error {
			return dispatch(repo, opts)
		})
	}
	if err != nil {
		log.Error(err)
		return 42
	}
	return 0
}

func dispatch(repo *pv.Repo, opts Opts) (err error) {
	switch true {
	case opts.Add:
		var names []string
		names, err = relnames(repo, opts.File)
		if err != nil {
			return
		}
		var entries []index.Entry
		entries, err = repo.Add(names...)
		printEntries(entries)
	case opts.Rm:
		var names []string
		names, err = relnames(repo, opts.File)
		if err != nil {
			return
		}
		err = repo.Remove(names...)
	case opts.Lookup:
		var names []string
		names, err = relnames(repo, opts.File)
		if err != nil {
			return
		}
		for _, name := range names {
			var hash string
			hash, err = repo.Lookup(name)
			if err != nil {
				return
			}
			fmt.Println(hash)
		}
	case opts.Which:
		var names []string
		names, err = repo.Which(opts.Hashval)
		if err != nil {
			return
		}
		fmt.Println(strings.Join(names, "\n"))
	case opts.Ls:
		entries := repo.Entries()
		if opts.ByHash {
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })
		} else {
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		}
		printEntries(entries)
	case opts.Status:
		var changes []pv.Change
		changes, err = repo.Status()
		for _, c := range changes {
			fmt.Println(c)
		}
	case opts.Snapshot:
		var entries []index.Entry
		entries, err = repo.Snapshot(opts.Name)
		if err != nil {
			return
		}
		fmt.Printf("snapshot %s: %d files\n", opts.Name, len(entries))
	case opts.Snapshots:
		var names []string
		names, err = repo.Snapshots()
		for _, name := range names {
			fmt.Println(name)
		}
	case opts.Restore:
		var entries []index.Entry
		entries, err = repo.Restore(opts.Name)
		printEntries(entries)
	case opts.Drop:
		err = repo.DropSnapshot(opts.Name)
	case opts.Watch:
		err = watchRepo(repo, opts.Tracked)
	}
	return
}

// root returns the repository root for the current invocation.
func root() (string, error) {
	if dir := os.Getenv("PITDIR"); dir != "" {
		return dir, nil
	}
	return pv.Find(".")
}

func withRepo(fn func(repo *pv.Repo) error) (err error) {
	dir, err := root()
	if err != nil {
		return
	}
	repo, err := pv.Open(dir)
	if err != nil {
		return
	}
	defer func() {
		cerr := repo.Close()
		if err == nil {
			err = cerr
		}
	}()
	return fn(repo)
}

// relnames converts command-line paths to names relative to the
// repository root.
func relnames(repo *pv.Repo, args []string) (names []string, err error) {
	base, err := filepath.Abs(repo.Dir)
	if err != nil {
		return
	}
	for _, arg := range args {
		var abs, rel string
		abs, err = filepath.Abs(arg)
		if err != nil {
			return
		}
		rel, err = filepath.Rel(base, abs)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return nil, fmt.Errorf("%w: %s is outside the repository", syscall.EINVAL, arg)
		}
		names = append(names, rel)
	}
	return
}

func create(opts Opts) (err error) {
	dir := os.Getenv("PITDIR")
	if dir == "" {
		dir = "."
	}
	cfg := config.Default()
	if opts.Algo != "" {
		cfg.Index.Algo = opts.Algo
	}
	if opts.Format != "" {
		cfg.Index.Format = opts.Format
	}
	if opts.ByHash {
		cfg.Index.Orientation = index.ByHash.String()
	}
	repo, err := pv.Repo{Dir: dir, Config: cfg}.Create()
	if err != nil {
		return
	}
	fmt.Printf("initialized %s (%s, %s, by %s)\n", config.Dir, cfg.Index.Algo, cfg.Index.Format, cfg.Index.Orientation)
	return repo.Close()
}

func hashFiles(algo string, files []string) (err error) {
	if algo == "" {
		algo = hasher.DefaultAlgo
	}
	h, err := hasher.New(algo)
	if err != nil {
		return
	}
	for _, file := range files {
		var fh *os.File
		fh, err = os.Open(file)
		if err != nil {
			return
		}
		var sum string
		sum, err = h.SumReader(fh)
		fh.Close()
		if err != nil {
			return
		}
		printEntry(index.Entry{Name: file, Hash: sum})
	}
	return
}

func watchRepo(repo *pv.Repo, tracked bool) (err error) {
	w := &watch.Watcher{
		Handle:      repo.Index,
		Dir:         repo.Files,
		Ignore:      repo.Config.Ignore,
		TrackedOnly: tracked,
		Flush:       true,
		OnAdd:       printEntry,
	}
	err = w.Start()
	if err != nil {
		return
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Infof("watching %s", repo.Dir)
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return
}

func printEntries(entries []index.Entry) {
	for _, e := range entries {
		printEntry(e)
	}
}

// printEntry uses the two-space layout of sha256sum.
func printEntry(e index.Entry) {
	fmt.Printf("%s  %s\n", e.Hash, e.Name)
}
