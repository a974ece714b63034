package schema

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/pgshift/pgshift/internal/configuration"
)

// IndexSpec describes one index built on every partition before attach. The
// index name is the partition name plus Suffix; the parent's partitioned
// index it attaches to is the parent name plus the same Suffix.
type IndexSpec struct {
	Suffix  string
	Columns []string
	Unique  bool
}

func IndexSpecsFromConfig(configs []configuration.IndexConfig) []IndexSpec {
	specs := make([]IndexSpec, len(configs))
	for i, c := range configs {
		specs[i] = IndexSpec{Suffix: c.Suffix, Columns: c.Columns, Unique: c.Unique}
	}
	return specs
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

// rangeCheckName is the name of the scaffolding CHECK constraint added
// before ATTACH PARTITION so postgres validates the attach without a scan.
func rangeCheckName(table string) string {
	return table + "_range_check"
}

func disableAutovacuumSql(table string) string {
	return fmt.Sprintf("ALTER TABLE %s SET (autovacuum_enabled = false)", ident(table))
}

func resetAutovacuumSql(table string) string {
	return fmt.Sprintf("ALTER TABLE %s RESET (autovacuum_enabled)", ident(table))
}

func copyBatchSql(source, target, column string) string {
	return fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s WHERE %s >= $1 AND %s < $2",
		ident(target), ident(source), ident(column), ident(column))
}

func constrainSql(table, column string, lo, hi int64) []string {
	return []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", ident(table), ident(column)),
		fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", ident(table), ident(column)),
		fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s >= %d AND %s < %d)",
			ident(table), ident(rangeCheckName(table)), ident(column), lo, ident(column), hi),
	}
}

func buildIndexSql(table string, index IndexSpec) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf(
		"CREATE %sINDEX %s ON %s (%s)",
		unique, ident(table+index.Suffix), ident(table), identList(index.Columns))
}

func attachTableSql(parent, table string, lo, hi int64) string {
	return fmt.Sprintf(
		"ALTER TABLE %s ATTACH PARTITION %s FOR VALUES FROM (%d) TO (%d)",
		ident(parent), ident(table), lo, hi)
}

func attachIndexSql(parent, table string, index IndexSpec) string {
	return fmt.Sprintf(
		"ALTER INDEX %s ATTACH PARTITION %s",
		ident(parent+index.Suffix), ident(table+index.Suffix))
}

// indexAttachedSql checks whether an index is already attached to a
// partitioned parent index. ATTACH PARTITION on the table auto-attaches
// child indexes whose definition matches, and attaching one of those again
// is an error, so the attach phase consults this first.
const indexAttachedSql = "SELECT EXISTS (SELECT 1 FROM pg_inherits WHERE inhrelid = $1::regclass)"

func dropRangeCheckSql(table string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", ident(table), ident(rangeCheckName(table)))
}

func analyzeSql(table string) string {
	return fmt.Sprintf("VACUUM ANALYZE %s", ident(table))
}

func createScaffoldSql(parent, table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS INCLUDING STORAGE)",
		ident(table), ident(parent))
}
