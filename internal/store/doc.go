// Package store declares persistence contracts for crawl progress. It holds
// no drivers; the postgres package implements it.
package store
