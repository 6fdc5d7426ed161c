/*

Pitvc tracks the content of files in a working tree by cryptographic
hash, so that changes to file bytes can be detected without looking at
file metadata.

Vocabulary:

- root: the top directory of a working tree; holds the .pit metadata dir
- name: path of a file relative to root, slash-separated
- hash: lowercase hex digest of a file's bytes
- algo: name (string) of the hash algorithm, fixed at repository creation
- entry: a (name, hash) pair
- index: the set of entries, keyed either by name or by hash
- orientation: which attribute is the index key; the other is the value
- handle: owner of an index loaded from a file; writes it back on flush
  and close
- status: the files that differ from the index
- snapshot: a named copy of the tracked files and the index, kept under
  .pit/snapshots

*/

package pitvc
