// Package auth manages the dashboard's single administrator credential and
// the browser sessions issued against it.
//
// A Service owns one credential record. Reads go through a short-lived
// in-memory snapshot; every mutation is funnelled through a single writer
// goroutine that loads the durable record, applies the change and saves it
// atomically before updating the snapshot. Callers that write therefore
// always read their own writes, while other readers may observe a snapshot
// up to the cache TTL old.
//
// Session expiry is lazy: expired sessions are removed when they are
// verified, when a new session is created, or when PruneExpired is called.
// Nothing runs in the background.
package auth
