package strata

import (
	"fmt"
	"strings"

	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// ShowResult is the structured answer to SHOW TABLES|INDEXES|VIEWS.
type ShowResult struct {
	Kind  string
	Names []string
}

// DescribeResult is the structured answer to DESCRIBE table: its
// columns and the indexes defined over it.
type DescribeResult struct {
	Table   string
	Columns []DescribeColumn
	Indexes []DescribeIndex
}

// DescribeColumn is one column's name, type, and nullability.
type DescribeColumn struct {
	Name     string
	Type     string
	Nullable bool
}

// DescribeIndex is one index's name, kind, uniqueness, and covered
// columns.
type DescribeIndex struct {
	Name    string
	Kind    string
	Unique  bool
	Columns []string
}

// AnalyzeReport is the structured answer to ANALYZE table: the planner
// statistics TableStats currently supplies for it.
type AnalyzeReport struct {
	Table       string
	RowCount    int64
	StripeCount int64
}

// PrettyPrint renders any of ShowResult, DescribeResult, or
// AnalyzeReport (or a slice of row.Row holding one of them, as returned
// by Query) to human-readable text. It is the one place these
// structured values are turned into strings; callers needing the
// values themselves should use the typed result, not this string.
func PrettyPrint(v any) string {
	switch r := v.(type) {
	case []row.Row:
		if len(r) == 1 && len(r[0]) == 1 {
			return PrettyPrint(r[0][0])
		}
		return fmt.Sprintf("%v", v)
	case ShowResult:
		if len(r.Names) == 0 {
			return fmt.Sprintf("no %s", r.Kind)
		}
		return fmt.Sprintf("%s:\n  %s", r.Kind, strings.Join(r.Names, "\n  "))
	case DescribeResult:
		var b strings.Builder
		fmt.Fprintf(&b, "table %s\n", r.Table)
		for _, c := range r.Columns {
			nullable := "not null"
			if c.Nullable {
				nullable = "nullable"
			}
			fmt.Fprintf(&b, "  %s %s %s\n", c.Name, c.Type, nullable)
		}
		for _, ix := range r.Indexes {
			unique := ""
			if ix.Unique {
				unique = " unique"
			}
			fmt.Fprintf(&b, "  index %s %s%s (%s)\n", ix.Name, ix.Kind, unique, strings.Join(ix.Columns, ", "))
		}
		return strings.TrimRight(b.String(), "\n")
	case AnalyzeReport:
		return fmt.Sprintf("%s: %d rows across %d stripes", r.Table, r.RowCount, r.StripeCount)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (db *DB) execShow(n *lang.Show) ([]row.Row, error) {
	snap := db.reg.Snapshot()
	var res ShowResult
	switch n.Kind {
	case lang.ShowTables:
		res.Kind = "tables"
		for _, t := range snap.Tables {
			res.Names = append(res.Names, t.Name)
		}
	case lang.ShowViews:
		res.Kind = "views"
		for _, v := range snap.Views {
			res.Names = append(res.Names, v.Name)
		}
	case lang.ShowIndexes:
		res.Kind = "indexes"
		for _, t := range snap.Tables {
			for _, ix := range t.Indexes {
				res.Names = append(res.Names, ix.Name)
			}
		}
	default:
		return nil, errs.Newf(errs.Syntax, "strata.execShow", "unknown SHOW kind %d", n.Kind)
	}
	return []row.Row{{res}}, nil
}

func (db *DB) execDescribe(n *lang.Describe) ([]row.Row, error) {
	table, err := db.reg.GetTable(n.Name)
	if err != nil {
		return nil, err
	}
	res := DescribeResult{Table: table.Name}
	for _, c := range table.Columns {
		res.Columns = append(res.Columns, DescribeColumn{
			Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable,
		})
	}
	for _, ix := range table.Indexes {
		res.Indexes = append(res.Indexes, DescribeIndex{
			Name: ix.Name, Kind: ix.Kind.String(), Unique: ix.Unique, Columns: ix.Columns,
		})
	}
	return []row.Row{{res}}, nil
}

func (db *DB) execAnalyze(n *lang.Analyze) ([]row.Row, error) {
	if _, err := db.reg.GetTable(n.Name); err != nil {
		return nil, err
	}
	stats := db.TableStats(n.Name)
	res := AnalyzeReport{Table: n.Name, RowCount: stats.RowCount, StripeCount: stats.StripeCount}
	return []row.Row{{res}}, nil
}
