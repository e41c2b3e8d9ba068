// Package pebblestore wraps the Pebble key/value store with the durability
// policy and instrumentation hooks used by the record store.
package pebblestore
