// Package client contains the Cobra CLI commands that talk to a running
// server over its HTTP API.
package client
