// Package session implements the in-memory rendezvous state machine:
// the registry of live agent sessions and, per session, the command
// queue, result store, streaming frame cache, and chat log.
//
// All state is volatile and process-local. A single registry lock
// serializes every mutation, so commands are dequeued in enqueue order
// and a result is consumed at most once even under concurrent callers.
package session
