package database

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/internal/configuration"
)

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(pairs, " ")
}

// OpenPgxPool connects to postgres, retrying with a fixed delay so a run
// started alongside a recovering database does not fail immediately.
func OpenPgxPool(config configuration.PostgresConfig) (*pgxpool.Pool, error) {
	var db *pgxpool.Pool
	err := retry.Do(
		func() error {
			pool, err := pgxpool.Connect(context.Background(), CreateConnectionString(config.Connection))
			if err != nil {
				return err
			}
			if err := pool.Ping(context.Background()); err != nil {
				pool.Close()
				return err
			}
			db = pool
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("failed to connect to postgres, attempt %d", n+1)
		}),
	)
	return db, err
}
