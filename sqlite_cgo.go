//go:build cgo

package sqlite

import "github.com/tinysqlite/sqlite/cgosqlite"

func init() {
	Engine = cgosqlite.Engine{}
}
