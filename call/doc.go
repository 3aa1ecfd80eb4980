// Package call wraps transport calls in handles that deliver one classified
// outcome per execution, and aggregates handles into batches.
//
// A Handle executes synchronously (Execute, Do) or asynchronously (Enqueue,
// Go). Asynchronous completions are classified on the transport goroutine and
// handed to the handle's Dispatcher, so user callbacks run on a single chosen
// completion context. Handles can be cancelled explicitly or through a
// lifecycle binding, and retried in place: a consumed transport call is
// swapped for a clone and the last execution mode is replayed.
//
// A Batch dispatches an ordered set of handles concurrently and invokes one
// aggregated callback once every handle has settled, with payloads, errors and
// handles aligned to the original order.
//
// Retrying a handle or batch while it is still executing is the caller's
// responsibility: completions of the superseded execution are dropped.
package call
