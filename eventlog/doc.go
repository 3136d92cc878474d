// Package eventlog stores publish-list log entries in a durable, ordered,
// Pebble-backed log and tracks per-consumer cursors.
//
// Key layout:
//
//	/evlog/{seq:016x}     -> msgpack(publishlist.LogEntry)
//	/evcursor/{consumer}  -> uint64 (last consumed sequence)
//	/evseq                -> uint64 (last assigned sequence)
//
// Append assigns contiguous sequence numbers per batch and commits the batch
// atomically. Consumers read with ReadFrom(cursor, limit) and persist their
// progress with AdvanceCursor; entries every consumer has moved past are
// deleted in the background.
//
// GlobFilter decides which resources a consumer converges.
package eventlog
