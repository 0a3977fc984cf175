// Package journal holds the operation-record model and the ordered mutation
// log that everything else is built on.
//
// A Record describes one finalized filesystem mutation. Records are produced
// by the FUSE interceptor, receive their sequence number from a single
// Journal, and are immutable from that point on. The package also provides
// per-handle write coalescing (CoalesceBuffer) and log compaction (Compact),
// which collapses redundant records while preserving replay equivalence.
package journal
