// Package serverrun wires configuration, storage, broadcast, ingest, relay,
// and the HTTP transport into a running process.
package serverrun
