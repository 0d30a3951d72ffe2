// Package retention runs scheduled maintenance over Rhea's durable state.
//
// A Pruner deletes usage ledger records older than the configured age and
// flushes idle conversation windows to their backends. A Scheduler runs the
// pruner on a cron schedule.
package retention
