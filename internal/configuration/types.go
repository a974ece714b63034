package configuration

import (
	"time"
)

type PgshiftConfig struct {
	// Database connection configuration
	Postgres PostgresConfig
	// Migration orchestration configuration
	Migration MigrationConfig
	// Port on which prometheus metrics are served; 0 disables the server
	MetricsPort uint16
	// Directory state files (failed/cancelled item lists) are written to
	StateDirectory string
}

type PostgresConfig struct {
	// Keyword-value connection parameters, e.g. host, port, user, dbname.
	// See https://www.postgresql.org/docs/current/libpq-connect.html#LIBPQ-PARAMKEYWORDS
	Connection map[string]string
}

type MigrationConfig struct {
	// Number of concurrent workers, i.e. concurrent database statements
	Workers int
	// Statement timeout applied to the first attempt of every work item
	InitialTimeout time.Duration
	// Amount added to the statement timeout on every Timeout outcome
	TimeoutIncrement time.Duration
	// Hard ceiling on the escalated statement timeout; 0 means unbounded
	MaxTimeout time.Duration
	// Number of retries per work item on Error outcomes
	Retries int
	// Number of sequence values copied per bulk-copy batch
	BatchSize int64
	// Number of sequence values covered by each partition
	PartitionSize int64
	// Relation rows are copied from
	SourceTable string
	// Partitioned parent relation rows are copied into
	ParentTable string
	// Monotonic column the parent is partitioned by range over
	SequenceColumn string
	// Indexes built on every partition before it is attached
	Indexes []IndexConfig
}

type IndexConfig struct {
	// Suffix appended to the partition name to form the index name
	Suffix string
	// Indexed columns, in order
	Columns []string
	// Whether the index is UNIQUE
	Unique bool
}
