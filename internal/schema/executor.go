// Package schema executes the DDL and bulk-copy statements of a partition
// migration against postgres. Statement deadlines are enforced by postgres
// itself via statement_timeout; a statement cancelled by that timeout is
// surfaced as a workpool timeout outcome so the orchestration policies can
// escalate or split.
package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/pgshift/pgshift/internal/workpool"
)

type Executor struct {
	db *pgxpool.Pool
}

func NewExecutor(db *pgxpool.Pool) *Executor {
	return &Executor{db: db}
}

func (e *Executor) DisableAutovacuum(ctx context.Context, timeout time.Duration, table string) error {
	return e.execTx(ctx, timeout, disableAutovacuumSql(table))
}

func (e *Executor) ResetAutovacuum(ctx context.Context, timeout time.Duration, table string) error {
	return e.execTx(ctx, timeout, resetAutovacuumSql(table))
}

// CopyBatch copies rows with column values in [lo, hi) from source into
// target and returns the number of rows copied.
func (e *Executor) CopyBatch(ctx context.Context, timeout time.Duration, source, target, column string, lo, hi int64) (int64, error) {
	var rows int64
	err := e.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := setLocalTimeout(ctx, tx, timeout); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, copyBatchSql(source, target, column), lo, hi)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, classifyTimeout(err)
}

// Constrain adds the NOT NULL and primary key constraints plus the
// scaffolding range check to a fully copied partition.
func (e *Executor) Constrain(ctx context.Context, timeout time.Duration, table, column string, lo, hi int64) error {
	return e.execTx(ctx, timeout, constrainSql(table, column, lo, hi)...)
}

func (e *Executor) BuildIndex(ctx context.Context, timeout time.Duration, table string, index IndexSpec) error {
	return e.execTx(ctx, timeout, buildIndexSql(table, index))
}

// AttachPartition attaches the table and each of its indexes to the parent
// in a single transaction, so a partition is never visible to queries with
// only part of its indexes attached. Indexes postgres auto-attached during
// the table attach are skipped.
func (e *Executor) AttachPartition(ctx context.Context, timeout time.Duration, parent, table string, lo, hi int64, indexes []IndexSpec) error {
	err := e.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := setLocalTimeout(ctx, tx, timeout); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, attachTableSql(parent, table, lo, hi)); err != nil {
			return err
		}
		for _, index := range indexes {
			var attached bool
			if err := tx.QueryRow(ctx, indexAttachedSql, table+index.Suffix).Scan(&attached); err != nil {
				return err
			}
			if attached {
				continue
			}
			if _, err := tx.Exec(ctx, attachIndexSql(parent, table, index)); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyTimeout(err)
}

func (e *Executor) DropRangeCheck(ctx context.Context, timeout time.Duration, table string) error {
	return e.execTx(ctx, timeout, dropRangeCheckSql(table))
}

// Analyze runs VACUUM ANALYZE, which cannot run inside a transaction; the
// statement timeout is set on a dedicated session connection instead.
func (e *Executor) Analyze(ctx context.Context, timeout time.Duration, table string) error {
	conn, err := e.db.Acquire(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return classifyTimeout(err)
	}
	if _, err := conn.Exec(ctx, analyzeSql(table)); err != nil {
		return classifyTimeout(err)
	}
	_, err = conn.Exec(ctx, "RESET statement_timeout")
	return classifyTimeout(err)
}

// CreateScaffold creates the bare, unattached partition table. It runs
// outside the work pool during plan preparation, hence the plain Querier.
func (e *Executor) CreateScaffold(ctx context.Context, q pgxtype.Querier, parent, table string) error {
	_, err := q.Exec(ctx, createScaffoldSql(parent, table))
	return errors.WithStack(err)
}

// Querier returns the underlying pool for preparation-time statements.
func (e *Executor) Querier() pgxtype.Querier {
	return e.db
}

func (e *Executor) execTx(ctx context.Context, timeout time.Duration, statements ...string) error {
	err := e.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := setLocalTimeout(ctx, tx, timeout); err != nil {
			return err
		}
		for _, sql := range statements {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyTimeout(err)
}

func setLocalTimeout(ctx context.Context, tx pgx.Tx, timeout time.Duration) error {
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds()))
	return err
}

// classifyTimeout maps a statement cancelled by statement_timeout (SQLSTATE
// 57014) onto the engine's recoverable timeout error. Everything else
// passes through unchanged.
func classifyTimeout(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.QueryCanceled {
		return workpool.NewTimeoutError(err)
	}
	if pgconn.Timeout(err) {
		return workpool.NewTimeoutError(err)
	}
	return errors.WithStack(err)
}
