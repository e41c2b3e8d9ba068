// Package store provides the durable transaction record store: the contract
// shared by the ingest pipeline and the distribution engine, an embedded
// Pebble backend, and a Postgres backend.
//
// Failures are classified: connectivity and I/O errors are wrapped as
// transient (retryable by the caller), while duplicate identifiers and
// missing records are final.
package store
