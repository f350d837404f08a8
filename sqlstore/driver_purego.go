//go:build !cgo_sqlite

package sqlstore

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"
