// Package record persists relayed signals in a SQLite history database.
//
// The Store is opened once per aggregator run and implements the
// aggregator sink contract through Sink, stamping each row with the run's
// session id. The history is append-only apart from Clear.
package record
