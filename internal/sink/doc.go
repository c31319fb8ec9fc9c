// Package sink persists finished reports.
//
// Every report is stored under a key of the form
// reports/<user_hash>/<YYYY-MM-DD>/<run_id>.json. Sinks that can also serve
// the most recent reports of a user implement Lister.
package sink
