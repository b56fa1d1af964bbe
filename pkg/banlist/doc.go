// Package banlist implements the shared player ban list: the in-memory
// registry, its persisted JSON document, and the read-modify-write protocol
// that keeps the document consistent on a docstore.Store.
//
// # Synchronization
//
// Every operation fetches the document and its revision, applies a pure
// mutation, and writes the result back presenting that same revision:
//
//	syncer.Update(ctx, func(reg *Registry) (string, error) {
//	    if _, ok := reg.Lookup(id); ok {
//	        return "", nil // no change, nothing is written
//	    }
//	    reg.Insert(id, record)
//	    return "[BOT] Ban " + record.Username, nil
//	})
//
// Mutations that change nothing skip the write entirely. A write rejected
// because the document moved on is returned as a *StoreError and is never
// retried; the caller resubmits.
//
// # Document format
//
//	{
//	  "banned_users": {
//	    "12345": {"username": "builderman", "displayName": "Builder Man"}
//	  }
//	}
//
// Older documents stored "banned_at" instead of "displayName". Decode
// normalizes those records into the current shape and reports what changed
// in a MigrationReport.
package banlist
