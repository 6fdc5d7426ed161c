package index

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Format names an on-disk encoding of an index.
type Format string

const (
	Text    Format = "text"
	Msgpack Format = "msgpack"
)

// ParseFormat accepts "text", "msgpack", or "" (text).
func ParseFormat(s string) (f Format, err error) {
	switch Format(s) {
	case Text, "":
		return Text, nil
	case Msgpack:
		return Msgpack, nil
	}
	return f, fmt.Errorf("%w: index format %q", syscall.EINVAL, s)
}

const sep = ","

// Encode writes every entry of ix to w as a "name,hash" line, in
// ascending primary-key order.
func Encode(w io.Writer, ix *Index) (err error) {
	bw := bufio.NewWriter(w)
	for e := range ix.All() {
		_, err = fmt.Fprintf(bw, "%s%s%s\n", e.Name, sep, e.Hash)
		if err != nil {
			return
		}
	}
	return bw.Flush()
}

type decodeOpts struct {
	strict bool
}

// DecodeOption adjusts Decode.
type DecodeOption func(*decodeOpts)

// Strict makes Decode reject records without a separator instead of
// storing them with an empty hash.
func Strict() DecodeOption {
	return func(o *decodeOpts) {
		o.strict = true
	}
}

// Decode reads "name,hash" lines from r into a new index.
func Decode(r io.Reader, orient Orientation, opts ...DecodeOption) (ix *Index, err error) {
	ix = New(orient)
	err = ix.Decode(r, opts...)
	if err != nil {
		return nil, err
	}
	return
}

// Decode reads "name,hash" lines from r into ix until EOF.  Each line
// is split on its first comma.  Unless Strict is given, a line with no
// comma is stored as a name with an empty hash.
func (ix *Index) Decode(r io.Reader, opts ...DecodeOption) (err error) {
	var o decodeOpts
	for _, opt := range opts {
		opt(&o)
	}
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, rerr := br.ReadString('\n')
		if len(line) == 0 && errors.Cause(rerr) == io.EOF {
			break
		}
		if rerr != nil && errors.Cause(rerr) != io.EOF {
			return errors.Wrapf(rerr, "line %d", n)
		}
		line = strings.TrimSuffix(line, "\n")
		name, hash, ok := strings.Cut(line, sep)
		if !ok {
			if o.strict {
				return &MalformedRecordError{Line: n, Text: line}
			}
			log.Warnf("index line %d: no separator in %q", n, line)
		}
		ix.Set(name, hash)
	}
	return
}
