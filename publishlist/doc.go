// Package publishlist converges content-lifecycle log entries into per-user
// publish lists.
//
// A publish list holds, for one user, the resources that user changed and has
// not yet published. The lists are derived from an append-only log: a
// Converter reads a batch of LogEntry values, folds them into one
// ResourceState per resource according to a Policy, and finally emits the
// minimal set of deletes and upserts through a Driver.
//
// # Routing (AllUsers policy)
//
//	NEW_DELETED, PUBLISHED_*, CHANGES_UNDONE  -> SetRemoveAll()
//	HIDDEN                                    -> AddRemove(user)
//	anything else                             -> AddUpdate(user, timestamp)
//
// # Exception layering
//
// SetRemoveAll discards the per-user changes recorded before it, while changes
// recorded after it are kept without clearing the flag:
//
//	[PUBLISHED_NEW(r, alice), CONTENT_MODIFIED(r, bob, t)]
//	  -> delete r for all users, then upsert (bob, r, t)
//
// The flush always sends deletes before updates so such later changes are not
// wiped out by the blanket removal.
package publishlist
