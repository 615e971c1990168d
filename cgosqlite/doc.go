// Package cgosqlite is a low-level interface onto SQLite using cgo.
//
// It implements the interfaces of package sqliteh against the system
// libsqlite3, one Go method per C entry point. It holds no opinions on
// ownership or conversion: package sqlite supplies those.
//
// Users of this package do not need to use any cgo, which means
// code using cgosqlite can focus on semantic transform of the API,
// not C<->Go transforms.
package cgosqlite
