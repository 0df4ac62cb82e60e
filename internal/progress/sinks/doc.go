// Package sinks holds the progress consumers wired by the server: structured
// logs, Prometheus collectors and the postgres progress tables.
package sinks
