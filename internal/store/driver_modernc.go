//go:build !sqlite_vec || !cgo

package store

// Default build: pure-Go SQLite driver, no vec extension. Snippet search
// falls back to brute-force cosine over stored embedding blobs.
import _ "modernc.org/sqlite"

const (
	driverName   = "sqlite"
	vecAvailable = false
)
