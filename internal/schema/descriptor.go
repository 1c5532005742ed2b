package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed defs.cue
var defsCUE string

//go:embed schema.cue
var schemaCUE string

// Table names. Always lower case; see Ident.
const (
	Posts           = "posts"
	Tags            = "tags"
	TagAssociations = "tag_associations"
	Conversations   = "conversations"
	Messages        = "messages"
)

// Message columns that change shape during migration.
const (
	ColSender       = "sender_id"
	ColReceiver     = "receiver_id"
	ColConversation = "conversation_id"
)

// ColumnType is the storage-neutral column type. Flavors map it to SQL types.
type ColumnType string

const (
	TypeID        ColumnType = "id"
	TypeText      ColumnType = "text"
	TypeTimestamp ColumnType = "timestamp"
	TypeBool      ColumnType = "bool"
	TypeJSON      ColumnType = "json"
)

// Phase says in which table shapes a column exists.
type Phase string

const (
	PhaseAlways  Phase = "always"
	PhaseLegacy  Phase = "legacy"
	PhaseGrouped Phase = "grouped"
)

// Reference is a foreign key target.
type Reference struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnDelete string `json:"on_delete"`
}

// Column describes one column.
type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	Nullable   bool       `json:"nullable"`
	Primary    bool       `json:"primary"`
	Unique     bool       `json:"unique"`
	Default    string     `json:"default,omitempty"`
	References *Reference `json:"references,omitempty"`
	Phase      Phase      `json:"phase"`
}

// Table describes one entity.
type Table struct {
	Name    string     `json:"name"`
	Columns []Column   `json:"columns"`
	Unique  [][]string `json:"unique"`
}

// Descriptor is the compiled set of entities.
type Descriptor struct {
	Tables []Table `json:"tables"`
}

// Ident normalizes an identifier to its canonical form.
// All table and column names pass through here once, at load time, so the
// rest of the module only ever sees one casing.
func Ident(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var (
	defaultOnce sync.Once
	defaultDesc *Descriptor
	defaultErr  error
)

// Default returns the descriptor compiled from the embedded schema.cue.
// The result is cached; callers must not mutate it.
func Default() (*Descriptor, error) {
	defaultOnce.Do(func() {
		defaultDesc, defaultErr = Compile(schemaCUE)
	})
	return defaultDesc, defaultErr
}

// MustDefault is like Default but panics on error.
// The embedded document is compiled in tests, so this only panics on a broken build.
func MustDefault() *Descriptor {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}

// Compile parses a CUE schema document into a Descriptor.
// The document defines a `tables` list; it is unified with the embedded
// #Table/#Column definitions, so defaults and type constraints apply.
// The document must not declare a package.
func Compile(src string) (*Descriptor, error) {
	ctx := cuecontext.New()
	defs := ctx.CompileString(defsCUE, cue.Filename("defs.cue"))
	if err := defs.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := ctx.CompileString(src, cue.Filename("schema.cue"))
	if err := doc.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := defs.Unify(doc)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var d Descriptor
	if err := v.LookupPath(cue.ParsePath("tables")).Decode(&d.Tables); err != nil {
		return nil, formatCUEError(err)
	}
	if len(d.Tables) == 0 {
		return nil, fmt.Errorf("schema: no tables declared")
	}

	d.normalize()
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Table looks up a table by name (case-insensitive).
func (d *Descriptor) Table(name string) (Table, bool) {
	name = Ident(name)
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// MustTable is like Table but panics if the table is not declared.
func (d *Descriptor) MustTable(name string) Table {
	t, ok := d.Table(name)
	if !ok {
		panic(fmt.Sprintf("schema: table %q not declared", name))
	}
	return t
}

// CheckStore reports whether d can back a store: every table the store
// writes is declared, and messages carries both the legacy pair and the
// grouped link column in their phases.
func (d *Descriptor) CheckStore() error {
	for _, name := range []string{Posts, Tags, TagAssociations, Conversations, Messages} {
		if _, ok := d.Table(name); !ok {
			return fmt.Errorf("schema: table %q not declared", name)
		}
	}
	msgs := d.MustTable(Messages)
	for name, phase := range map[string]Phase{
		ColSender:       PhaseLegacy,
		ColReceiver:     PhaseLegacy,
		ColConversation: PhaseGrouped,
	} {
		c, ok := msgs.Column(name)
		if !ok {
			return fmt.Errorf("schema: %s.%s not declared", Messages, name)
		}
		if c.Phase != phase {
			return fmt.Errorf("schema: %s.%s must be in phase %q, got %q", Messages, name, phase, c.Phase)
		}
	}
	return nil
}

// Column looks up a column by name (case-insensitive).
func (t Table) Column(name string) (Column, bool) {
	name = Ident(name)
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// WithPhases returns a copy of t holding PhaseAlways columns plus the given phases.
func (t Table) WithPhases(phases ...Phase) Table {
	keep := map[Phase]bool{PhaseAlways: true}
	for _, p := range phases {
		keep[p] = true
	}
	out := Table{Name: t.Name, Unique: t.Unique}
	for _, c := range t.Columns {
		if keep[c.Phase] {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// ColumnNames returns column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (d *Descriptor) normalize() {
	for i := range d.Tables {
		t := &d.Tables[i]
		t.Name = Ident(t.Name)
		for j := range t.Columns {
			c := &t.Columns[j]
			c.Name = Ident(c.Name)
			if c.Phase == "" {
				c.Phase = PhaseAlways
			}
			if c.References != nil {
				c.References.Table = Ident(c.References.Table)
				c.References.Column = Ident(c.References.Column)
				if c.References.Column == "" {
					c.References.Column = "id"
				}
			}
		}
		for j, group := range t.Unique {
			for k := range group {
				t.Unique[j][k] = Ident(group[k])
			}
		}
	}
}

func (d *Descriptor) validate() error {
	seen := make(map[string]bool, len(d.Tables))
	for _, t := range d.Tables {
		if seen[t.Name] {
			return fmt.Errorf("schema: duplicate table %q", t.Name)
		}
		seen[t.Name] = true

		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if cols[c.Name] {
				return fmt.Errorf("schema: %s: duplicate column %q", t.Name, c.Name)
			}
			cols[c.Name] = true
		}
		for _, group := range t.Unique {
			for _, name := range group {
				if !cols[name] {
					return fmt.Errorf("schema: %s: unique constraint names unknown column %q", t.Name, name)
				}
			}
		}
	}

	// References may point forward, so check them once every table is known.
	for _, t := range d.Tables {
		for _, c := range t.Columns {
			if c.References != nil && !seen[c.References.Table] {
				return fmt.Errorf("schema: %s.%s references unknown table %q", t.Name, c.Name, c.References.Table)
			}
		}
	}
	return nil
}

// CompileError carries the source position of a CUE failure.
type CompileError struct {
	Message string
	Pos     string
}

func (e *CompileError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("schema: %s: %s", e.Pos, e.Message)
	}
	return "schema: " + e.Message
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0].String()
	}
	return ce
}
