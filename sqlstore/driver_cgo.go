//go:build cgo_sqlite

// The cgo driver is used when building with -tags cgo_sqlite.
// It requires CGO_ENABLED=1.
package sqlstore

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"
