package migrations

import (
	"fmt"
	"strings"
)

const (
	sqlite = iota
	postgres
	mysql
)

type sqlColumn struct {
	Name       string
	Type       sqlDataType
	PrimaryKey bool
	Unique     bool
	NotNull    bool
	Default    string
}

type sqlDataType interface {
	SQL(kind int) string
}

type sqlText struct{}
type sqlBlob struct{}
type sqlTimestamp struct{}
type sqlVarChar struct{}

func (sqlText) SQL(_ int) string {
	return "TEXT"
}

// Compiled bundles easily exceed the 64KiB of a MySQL BLOB.
func (sqlBlob) SQL(kind int) string {
	switch kind {
	case sqlite:
		return "BLOB"
	case postgres:
		return "BYTEA"
	case mysql:
		return "LONGBLOB"
	}

	panic("unknown kind")
}

func (sqlTimestamp) SQL(_ int) string {
	return "TIMESTAMP"
}

func (sqlVarChar) SQL(kind int) string {
	switch kind {
	case sqlite:
		return "TEXT"
	case postgres, mysql:
		return "VARCHAR(255)"
	}

	panic("unknown kind")
}

func (c sqlColumn) SQL(kind int) string {
	parts := []string{c.Name, c.Type.SQL(kind)}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT", c.Default)
	}
	return strings.Join(parts, " ")
}

type sqlTable struct {
	name      string
	columns   []sqlColumn
	iteration string // prefix for constraints
}

func createSQLTable(name string) *sqlTable {
	return &sqlTable{
		name:      name,
		iteration: "bundlekit_v1",
	}
}

func (t *sqlTable) VarCharPrimaryKeyColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlVarChar{}, PrimaryKey: true})
	return t
}

func (t *sqlTable) TextColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlText{}})
	return t
}

func (t *sqlTable) BlobNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlBlob{}, NotNull: true})
	return t
}

func (t *sqlTable) TimestampDefaultCurrentTimeColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlTimestamp{}, Default: "CURRENT_TIMESTAMP"})
	return t
}

func (t *sqlTable) SQL(kind int) string {
	c := make([]string, len(t.columns))
	for i := range t.columns {
		c[i] = t.columns[i].SQL(kind)
	}

	// Constraint names are ours so that later migrations can refer to them
	// the same way on every dialect.
	for i := range t.columns {
		if t.columns[i].PrimaryKey {
			c = append(c, fmt.Sprintf("CONSTRAINT %[1]s_%[2]s_%[3]s_pkey PRIMARY KEY (%[3]s)", t.iteration, t.name, t.columns[i].Name))
		}
		if t.columns[i].Unique {
			c = append(c, fmt.Sprintf("CONSTRAINT %[1]s_%[2]s_%[3]s_unique UNIQUE (%[3]s)", t.iteration, t.name, t.columns[i].Name))
		}
	}

	return `CREATE TABLE IF NOT EXISTS ` + t.name + ` (` + strings.Join(c, ", ") + `);`
}
