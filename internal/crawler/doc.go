// Package crawler holds the domain model shared by every subsystem of the
// site crawler: jobs and their state machine, page records, issues, reports,
// the collaborator interfaces (registry, fetcher, blob store, publisher) and
// small policies used by several packages (URL normalization, robots.txt,
// exclusion patterns, retry classification).
package crawler
