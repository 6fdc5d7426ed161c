package index

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack"
)

const snapshotVersion = 1

// snapshot is the msgpack encoding of an index.  Unlike the text
// format it records the orientation and hash algorithm it was written
// with.
type snapshot struct {
	Version     int     `msgpack:"version"`
	Orientation string  `msgpack:"orientation"`
	Algo        string  `msgpack:"algo"`
	Entries     []Entry `msgpack:"entries"`
}

// EncodeSnapshot writes ix to w as a single msgpack message.
func EncodeSnapshot(w io.Writer, ix *Index) (err error) {
	snap := snapshot{
		Version:     snapshotVersion,
		Orientation: ix.orient.String(),
		Algo:        ix.hasher.Algo,
		Entries:     ix.Entries(),
	}
	err = msgpack.NewEncoder(w).Encode(&snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return
}

// DecodeSnapshot reads a msgpack snapshot from r into ix.  An empty
// stream decodes as an empty snapshot.  A snapshot hashed with another
// algorithm than ix's hasher is rejected, since its digests could never
// match files added through ix.  A snapshot written with the other
// orientation is accepted; in a ByHash index later entries replace
// earlier ones with the same hash.
func (ix *Index) DecodeSnapshot(r io.Reader) (err error) {
	br := bufio.NewReader(r)
	_, err = br.Peek(1)
	if errors.Cause(err) == io.EOF {
		return nil
	}
	var snap snapshot
	err = msgpack.NewDecoder(br).Decode(&snap)
	if err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	orient, err := ParseOrientation(snap.Orientation)
	if err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	if orient != ix.orient {
		log.Warnf("snapshot written by %s, reading into index by %s", orient, ix.orient)
	}
	if len(snap.Entries) > 0 && snap.Algo != ix.hasher.Algo {
		return fmt.Errorf("snapshot hashed with %s, index uses %s", snap.Algo, ix.hasher.Algo)
	}
	for _, e := range snap.Entries {
		ix.Set(e.Name, e.Hash)
	}
	return
}
