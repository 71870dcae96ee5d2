// Package store holds the persistence implementations for crawl jobs,
// articles, and sources. The memory subpackage backs tests and single-node
// runs; the postgres subpackage is the production store. Both satisfy the
// interfaces defined in the crawl package.
package store
