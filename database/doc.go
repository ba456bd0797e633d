// Package database manages the process-wide Bun connection pool and the
// per-scope ConnectionFactory that lazily opens one connection and one
// transaction, commits or rolls them back, and releases them on Close.
// It also carries configuration loading, profiling hooks, driver error
// classification and table bootstrapping for registered models.
package database
