// Package codec serializes journal records into the state-diff wire format
// and back.
//
// A diff stream is a fixed header followed by segments. Each segment is
// self-describing: version, compressed flag, dictionary id, record count,
// uncompressed length, and an xxhash64 checksum of the uncompressed bytes,
// so truncation and corruption are detected before any record is decoded.
//
// Compression is zstd, optionally bound to a trained dictionary. The
// Compressor implements the adaptive policy (skip compression while the
// trailing ratio shows no benefit) and the DictionaryManager owns dictionary
// training, rotation, and the on-disk cache.
package codec
