// Package progress streams per-job crawl milestones from workers to sinks.
// Emit never blocks: events are buffered, batched on a background goroutine
// and handed to each sink, and dropped with a rate-limited warning when the
// buffer is full.
package progress
