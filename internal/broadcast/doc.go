// Package broadcast is the event distribution engine: it fans persisted
// transaction records out to any number of concurrent subscriptions, as a
// replay-from-start stream or a new-records-only stream.
//
// Three interchangeable delivery strategies are provided. Direct broadcast
// multicasts in memory and skips subscribers that cannot keep up. The replay
// log (default) retains one ordered in-memory log serving both stream kinds
// as two views. The poll strategy reads only from the durable record store
// on a fixed interval, trading latency for restart tolerance.
//
// Under every strategy a publish never waits on a subscriber, cancellation
// is observed promptly, and a slow consumer affects nobody but itself.
package broadcast
