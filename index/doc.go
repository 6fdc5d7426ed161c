/*

Package index keeps a bidirectional, content-addressed mapping between
filenames and the digests of their content, and persists it across
process invocations.

Vocabulary:

- name: path of a tracked file, relative to the repository root
- hash: hex digest of a file's content (see package hasher)
- entry: a (name, hash) pair
- orientation: which attribute of an entry is the unique primary key;
  ByName indexes allow several names to share a hash, ByHash indexes
  keep at most one name per hash
- primary: the key attribute of the current orientation
- secondary: the other attribute; looked up through the reverse index
- collapse: the loss of names that share a hash when a ByName index is
  converted to ByHash
- handle: owner of an index loaded from a backing file; the handle
  writes the whole index back on Flush and on Close

Text file format, one record per line, no header, no escaping:

	name,hash

Records are split on the first comma.  The name column always comes
first, whatever the orientation.

*/

package index
