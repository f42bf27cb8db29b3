// Package catalog implements the schema registry of spec.md §4.B: a
// durable, versioned catalog of databases, tables, columns, indexes, and
// materialized views.
package catalog

// ColumnType enumerates the type set from spec.md §3.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeFloat
	TypeString
	TypeBool
	TypeTimestamp
	TypeBinary
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ParseColumnType maps a lowercase type keyword to a ColumnType.
func ParseColumnType(s string) (ColumnType, bool) {
	switch s {
	case "int":
		return TypeInt, true
	case "float":
		return TypeFloat, true
	case "string":
		return TypeString, true
	case "bool":
		return TypeBool, true
	case "timestamp":
		return TypeTimestamp, true
	case "binary":
		return TypeBinary, true
	default:
		return 0, false
	}
}

// Column is one physical-layout-ordered field of a Table.
type Column struct {
	Name     string     `yaml:"name"`
	Type     ColumnType `yaml:"type"`
	Nullable bool       `yaml:"nullable"`
}

// IndexKind enumerates the secondary-index kinds from spec.md §3/§4.D.
type IndexKind int

const (
	IndexBTree IndexKind = iota
	IndexHash
	IndexBloom
	IndexBitmap
)

func (k IndexKind) String() string {
	switch k {
	case IndexBTree:
		return "btree"
	case IndexHash:
		return "hash"
	case IndexBloom:
		return "bloom"
	case IndexBitmap:
		return "bitmap"
	default:
		return "unknown"
	}
}

// Index associates key columns of a Table with a locator-list index.
type Index struct {
	Name    string    `yaml:"name"`
	Table   string    `yaml:"table"`
	Columns []string  `yaml:"columns"`
	Kind    IndexKind `yaml:"kind"`
	Unique  bool      `yaml:"unique"`
}

// Table is a named, ordered sequence of columns plus its indexes.
type Table struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
	Indexes []Index  `yaml:"indexes"`
}

// ColumnIndex returns the position of name within t.Columns, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// View is a materialized view definition (spec.md §3).
type View struct {
	Name               string   `yaml:"name"`
	SourceQuery        string   `yaml:"source_query"`
	StripeSetRef       string   `yaml:"stripe_set_ref"`
	DependencyTables   []string `yaml:"dependency_tables"`
}

// DatabaseSchema is the persisted catalog document for one database.
type DatabaseSchema struct {
	Name         string  `yaml:"name"`
	MajorVersion int     `yaml:"major_version"`
	MinorVersion int     `yaml:"minor_version"`
	Tables       []Table `yaml:"tables"`
	Views        []View  `yaml:"views"`
}
