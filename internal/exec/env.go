package exec

import (
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// rowEnv binds a decoded row's columns by name into a fresh evaluator
// environment, the bridge between the columnar Row the scan operators
// produce and the name-addressed Identifier nodes WHERE/SELECT/ORDER BY
// expressions are built from.
func rowEnv(table catalog.Table, r row.Row) *lang.Env {
	env := lang.NewEnv(nil)
	for i, col := range table.Columns {
		if i < len(r) {
			env.Define(col.Name, r[i])
		}
	}
	return env
}
