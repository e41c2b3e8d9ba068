// Package httpserver exposes the transaction API over HTTP: submission,
// single-record lookup, and the two SSE stream endpoints. It is the only
// transport; every handler delegates to the ingest pipeline, the store,
// or the broadcaster.
package httpserver
