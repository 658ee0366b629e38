//go:build !cgo

package store

import "errors"

func openCGOSQLite(string) (KV, error) {
	return nil, errors.New("store: sqlite3 driver requires a cgo build")
}
