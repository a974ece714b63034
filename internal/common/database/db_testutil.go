package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

// WithTestDb spins up a dedicated postgres database for a test, runs the
// provided setup statements in it, and hands a connection pool to the
// action callback. The database is dropped afterwards. Connecting requires
// a local postgres instance; callers should skip their test when the
// returned error wraps a connection failure.
func WithTestDb(setupSql []string, action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()

	dbName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	connectionString := "host=localhost port=5432 user=postgres password=psw sslmode=disable"
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	testDbPool, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		testDbPool.Close()
		_, err = db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			fmt.Println("Failed to disconnect users")
		}
		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			fmt.Println("Failed to drop database")
		}
	}()

	for _, sql := range setupSql {
		if _, err := testDbPool.Exec(ctx, sql); err != nil {
			return errors.WithStack(err)
		}
	}

	return action(testDbPool)
}
