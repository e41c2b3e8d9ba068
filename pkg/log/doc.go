// Package log provides structured, leveled logging for the service.
//
// Loggers carry a set of bound fields and write formatted entries to one or
// more outputs. The package also bridges the standard library logger so that
// dependencies (notably Pebble) emit through the same pipeline.
package log
