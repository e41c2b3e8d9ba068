// Package transaction defines the transaction record, the inbound request
// shape and its validation, and the structured submission outcome.
package transaction
