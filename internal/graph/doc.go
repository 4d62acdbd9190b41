// Package graph is the versioned entity store behind modelsync.
//
// The store holds typed entities (modules, content roots, source roots,
// facets, libraries, SDKs, artifacts and packaging elements) connected by
// owning parent -> child edges. Two views exist:
//
//   - [Snapshot] is immutable. Entity records are shared between snapshots,
//     so retaining an untouched entity across versions is a pointer copy.
//   - [Builder] is a single-writer working copy opened from a snapshot (or
//     empty). Records are copied on first write; the source snapshot is never
//     touched. [Builder.Freeze] produces the next snapshot.
//
// # References
//
// Structural references are stored only as forward edges: each record keeps
// the ordered list of its children. The child -> parent index is derived and
// is rebuilt from the forward edges on every freeze, so the two sides cannot
// drift apart. Moving or removing an entity through the builder keeps both
// sides consistent, and removal cascades through the owned subtree.
//
// Cross-tree references are soft links: a [SymbolicID] embedded in entity
// data (a module dependency naming a library, a packaging element naming a
// module). Symbolic IDs are unique per table. Renaming an entity rewrites
// every soft link holder in the same builder, including holders whose own
// symbolic ID changes as a consequence (module-level libraries).
//
// # Provenance
//
// Every entity carries an [EntitySource] telling which file produced it.
// [Builder.ReplaceBySource] swaps exactly the entities of a set of sources
// for freshly parsed content, keeping the internal IDs of everything that
// did not change.
package graph
