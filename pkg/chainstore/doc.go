/*
Package chainstore persists trained markov chains as named snapshots in a
SQLite database.

Multiple chains share one database, keyed by name. Elements are stored as
JSON, so any element type the encoding/json package can round-trip is
supported. The package never imports a SQLite driver itself; callers
register one (modernc.org/sqlite or mattn/go-sqlite3) and hand Store an
open *sql.DB after running SetupSchema on it.
*/
package chainstore
