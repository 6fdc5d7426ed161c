package index

import (
	"fmt"
	"strings"
)

// FileNotReadableError is returned by Add when the named file can't be
// read.
type FileNotReadableError struct {
	Name string
	Err  error
}

func (e *FileNotReadableError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Name, e.Err)
}

func (e *FileNotReadableError) Unwrap() error {
	return e.Err
}

// KeyNotFoundError is returned by both primary and secondary lookups
// on a miss.
type KeyNotFoundError struct {
	Key string
	By  Orientation
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.By, e.Key)
}

// MalformedRecordError is returned by strict decoding for a record
// without a separator.
type MalformedRecordError struct {
	Line int
	Text string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: malformed record: %q", e.Line, e.Text)
}

// CollapseError lists the entries that ConvertStrict dropped because
// their key was already taken in the target orientation.
type CollapseError struct {
	Dropped []Entry
}

func (e *CollapseError) Error() string {
	var names []string
	for _, entry := range e.Dropped {
		names = append(names, entry.Name)
	}
	return fmt.Sprintf("%d entries collapsed: %s", len(e.Dropped), strings.Join(names, " "))
}

// LockedError is returned by Open when another handle holds the lock on
// the backing file.
type LockedError struct {
	Path string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("index locked: %s", e.Path)
}
