// Package conversation keeps per-conversation message buffers bounded.
//
// A Window holds one conversation's active messages under token and message
// count limits, archiving the oldest messages with a summary when a limit is
// crossed. The Store manages many windows: creation, durable persistence,
// cross-window search, and merging. Persistence is write-behind and
// best-effort; the in-memory window stays authoritative when a backend
// write fails.
package conversation
