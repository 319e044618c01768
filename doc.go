// Package bsdrive is the foundation of a tool for copying and seeding drives:
// versioned file trees that peers replicate from one another.
//
// Everything in a drive is a blob,
// an arbitrarily sized sequence of bytes,
// kept in a content-addressable blob store
// and indexed by its sha2-256 hash,
// called the blob's reference, or ref.
// Because a ref is computed from a blob's content,
// a peer can verify any blob it receives from another,
// and identical content is stored only once.
//
// File contents are split into blocks at content-defined boundaries
// (see the split subpackage),
// so an edit to a file changes only the blocks near the edit.
// Directories are blobs listing names, modes and refs
// (see the fs subpackage).
//
// Since every change to a drive produces a new root ref,
// the drive's current root is found through an anchor:
// a name mapped to a sequence of refs over time
// (see the anchor subpackage).
//
// The drive subpackage ties these together,
// the swarm subpackage finds peers and exchanges blobs with them,
// and the session subpackage runs a whole copy or create operation
// for the bsdrive command.
package bsdrive
