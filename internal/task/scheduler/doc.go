// Package scheduler registers named cron and one-shot triggers and runs each
// fired job on its own supervised goroutine.
//
// Registration is upsert-by-name, so re-arming the same job (for example after a
// reconnect) replaces the previous trigger instead of duplicating it.
package scheduler
