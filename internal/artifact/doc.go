// Package artifact records stage outputs and describes file trees.
//
// # Store
//
// Every artifact a stage declares is recorded exactly once, after the stage
// succeeded, together with the host path it was materialized at and its
// listing. The store is written by the executor's workers concurrently and
// read by the compose node, so it uses sync.Map keyed by artifact address.
//
// # Listings
//
// A Listing is a deterministic description of a tree: slash-separated
// relative paths in lexical order, file mode, size, a sha256 content digest
// and symlink targets. Timestamps and ownership are left out so two builds
// of the same inputs produce identical listings.
package artifact
