package sqlite

import (
	"fmt"
	"strings"
)

type schemaEntry struct {
	name, typ, sql string
}

// schema lists the user entries of schemaName in creation order.
// Entries the engine creates itself (auto-indexes, sqlite_sequence)
// are skipped: they come and go with their tables.
func schema(conn *Conn, schemaName string) (entries []schemaEntry, err error) {
	q, err := conn.Prepare(fmt.Sprintf("SELECT name, type, sql FROM %q.sqlite_schema WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%%' ORDER BY rowid", schemaName))
	if err != nil {
		return nil, err
	}
	defer q.Close()
	a, err := q.Execute()
	if err != nil {
		return nil, err
	}
	for row, err := range a.All() {
		if err != nil {
			return nil, err
		}
		var e schemaEntry
		if err := row.Scan(&e.name, &e.typ, &e.sql); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DropAll deletes all the data from a database.
//
// The schemaName parameter follows the SQLite PRAMGA schema-name conventions:
// https://sqlite.org/pragma.html#syntax
func DropAll(conn *Conn, schemaName string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite.DropAll: %w", err)
		}
	}()

	if schemaName == "" {
		schemaName = "main"
	}

	entries, err := schema(conn, schemaName)
	if err != nil {
		return err
	}
	var indexes, tables, triggers, views []string
	for _, e := range entries {
		switch e.typ {
		case "index":
			indexes = append(indexes, e.name)
		case "table":
			tables = append(tables, e.name)
		case "trigger":
			triggers = append(triggers, e.name)
		case "view":
			views = append(views, e.name)
		default:
			return fmt.Errorf("unknown sqlite schema type %q for %q", e.typ, e.name)
		}
	}

	for _, group := range []struct {
		kind  string
		names []string
	}{
		{"INDEX", indexes},
		{"TRIGGER", triggers},
		{"VIEW", views},
		{"TABLE", tables},
	} {
		for _, name := range group.names {
			if err := conn.ExecScript(fmt.Sprintf("DROP %s %q.%q;", group.kind, schemaName, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// CopyAll copies the contents of one database to another.
//
// Traditionally this is done in sqlite by closing the database and copying
// the file. However it can be useful to do it online: a single exclusive
// transaction can cross multiple databases, and if multiple processes are
// using a file, this lets one replace the database without first
// communicating with the other processes, asking them to close the DB first.
//
// The dstSchemaName and srcSchemaName parameters follow the SQLite PRAMGA
// schema-name conventions: https://sqlite.org/pragma.html#syntax
func CopyAll(conn *Conn, dstSchemaName, srcSchemaName string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite.CopyAll: %w", err)
		}
	}()
	if dstSchemaName == "" {
		dstSchemaName = "main"
	}
	if srcSchemaName == "" {
		srcSchemaName = "main"
	}
	if dstSchemaName == srcSchemaName {
		return fmt.Errorf("source matches destination: %q", srcSchemaName)
	}

	entries, err := schema(conn, srcSchemaName)
	if err != nil {
		return err
	}
	for _, e := range entries {
		// Regardless of the case or whitespace used in the original
		// create statement (or whether or not "if not exists" is used),
		// the SQL text in the sqlite_schema table always reads:
		// 	"CREATE (TABLE|VIEW|INDEX|TRIGGER) name".
		// We take advantage of that here to rewrite the create
		// statement for a different schema.
		var prefix string
		switch e.typ {
		case "index":
			prefix = "CREATE INDEX "
		case "table":
			prefix = "CREATE TABLE "
		case "trigger":
			prefix = "CREATE TRIGGER "
		case "view":
			prefix = "CREATE VIEW "
		default:
			return fmt.Errorf("unknown sqlite schema type %q for %q", e.typ, e.name)
		}
		sqlText := fmt.Sprintf("%s%q.%s", prefix, dstSchemaName, strings.TrimPrefix(e.sql, prefix))
		if err := conn.ExecScript(sqlText); err != nil {
			return err
		}
		if e.typ == "table" {
			if err := conn.ExecScript(fmt.Sprintf("INSERT INTO %q.%q SELECT * FROM %q.%q;", dstSchemaName, e.name, srcSchemaName, e.name)); err != nil {
				return err
			}
		}
	}
	return nil
}
