package schema

import (
	"fmt"
	"strings"
)

// Flavor selects the SQL dialect DDL is rendered for.
type Flavor string

const (
	SQLite   Flavor = "sqlite"
	Postgres Flavor = "postgres"
)

// ParseFlavor maps a driver name to a Flavor.
func ParseFlavor(name string) (Flavor, error) {
	switch Ident(name) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("schema: unknown flavor %q", name)
	}
}

// SQLType returns the column type for this flavor.
func (f Flavor) SQLType(t ColumnType) string {
	switch t {
	case TypeTimestamp:
		if f == Postgres {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// ColumnOverride adjusts a single column while rendering.
type ColumnOverride struct {
	// Omit drops the column from the rendered table.
	Omit bool
	// Nullable forces the column to render without NOT NULL.
	Nullable bool
	// NoReference drops the column's REFERENCES clause.
	NoReference bool
}

// RenderOptions controls CreateSQL.
type RenderOptions struct {
	// Name overrides the table name (e.g. a temporary rebuild table).
	Name string
	// IfNotExists adds IF NOT EXISTS.
	IfNotExists bool
	// Overrides are keyed by column name.
	Overrides map[string]ColumnOverride
}

// CreateSQL renders a CREATE TABLE statement without a trailing semicolon.
func (t Table) CreateSQL(f Flavor, opts RenderOptions) string {
	name := t.Name
	if opts.Name != "" {
		name = opts.Name
	}

	var lines []string
	present := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		o := opts.Overrides[c.Name]
		if o.Omit {
			continue
		}
		if o.Nullable {
			c.Nullable = true
		}
		if o.NoReference {
			c.References = nil
		}
		present[c.Name] = true
		lines = append(lines, "\t"+ColumnDef(f, c))
	}

	for _, group := range t.Unique {
		complete := true
		for _, col := range group {
			if !present[col] {
				complete = false
				break
			}
		}
		if complete {
			lines = append(lines, fmt.Sprintf("\tUNIQUE (%s)", strings.Join(group, ", ")))
		}
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if opts.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(name)
	b.WriteString(" (\n")
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

// ColumnDef renders one column definition as used in CREATE TABLE and
// ALTER TABLE ... ADD COLUMN.
func ColumnDef(f Flavor, c Column) string {
	parts := []string{c.Name, f.SQLType(c.Type)}
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Primary {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT "+c.Default)
	}
	if c.References != nil {
		parts = append(parts, fmt.Sprintf("REFERENCES %s(%s)", c.References.Table, c.References.Column))
		if c.References.OnDelete == "cascade" {
			parts = append(parts, "ON DELETE CASCADE")
		}
	}
	return strings.Join(parts, " ")
}

// BaselineSQL renders the statements that create the pre-migration schema:
// every table except conversations, with messages in its legacy shape.
// Statements are idempotent.
func (d *Descriptor) BaselineSQL(f Flavor) []string {
	var stmts []string
	for _, t := range d.Tables {
		switch t.Name {
		case Conversations:
			continue
		case Messages:
			t = t.WithPhases(PhaseLegacy)
		}
		stmts = append(stmts, t.CreateSQL(f, RenderOptions{IfNotExists: true}))
	}
	return stmts
}
