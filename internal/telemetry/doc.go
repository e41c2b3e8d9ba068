// Package telemetry defines the lifecycle observer invoked by the ingest
// pipeline and the distribution engine, with a no-op and a Prometheus
// implementation.
package telemetry
