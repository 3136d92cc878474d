// Package publisher runs publish-list convergence.
//
// A Worker polls the event log from its persisted cursor, drops entries the
// resource filter rejects, folds each batch into a fresh
// publishlist.Converter and flushes the result into the store. Flushes are
// retried with exponential backoff; a retry rebuilds the converter from the
// same batch. After a successful flush the change set is announced to the
// configured sinks as JSON ChangeMessages and the cursor moves to the last
// sequence of the batch.
//
// Delivery is at-least-once: a crash between flush and cursor advance
// replays the batch, which converges to the same rows.
//
// The Registry owns the event log, the store, the sinks and the worker.
// Sink implementations register themselves by type from the sink
// sub-package:
//
//	import _ "github.com/maxpert/publist/publisher/sink"
package publisher
