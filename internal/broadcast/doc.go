// Package broadcast implements the single-scheduler streaming mode using the actor pattern.
//
// One goroutine owns the tick: it snapshots the series store, encodes the frame
// once, fans it out to every listener, then advances the store by one step. The
// advance rate is therefore independent of how many listeners are connected.
// Listener registration goes through a command channel (no mutexes). Per-connection
// writer goroutines absorb slow peers; a listener whose buffer is full is evicted.
package broadcast
