// Package core provides the in-memory vector memory engine for simse.
//
// It combines dense-vector cosine search over magnitude-cached embeddings with
// BM25 lexical search, metadata/topic filtering, deduplication, recency and
// frequency scoring, and a gzip-compressed binary persistence codec.
//
// # Key Components
//
//   - The building blocks that package store's VolumeStore composes into
//     full CRUD, search, advanced-search, recommendation, and persistence:
//   - InvertedIndex: term postings with Okapi BM25 ranking.
//   - TopicIndex / TopicCatalog: hierarchical topic classification with
//     auto-extraction, aliases, fuzzy normalization, and co-occurrence.
//   - MetadataIndex / MagnitudeCache: exact (key, value) lookups and cached
//     L2 norms for the linear cosine scan.
//   - Persistence codec: the v2 gzipped index format with per-entry binary
//     records, shared with the original TypeScript store.
//
// The store presents an externally serial contract: the surrounding RPC
// dispatcher runs requests to completion one at a time, so there is no
// internal locking beyond the regex cache.
package core
