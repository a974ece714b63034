package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/internal/common"
	"github.com/pgshift/pgshift/internal/common/app"
	"github.com/pgshift/pgshift/internal/common/database"
	"github.com/pgshift/pgshift/internal/configuration"
	"github.com/pgshift/pgshift/internal/metrics"
	"github.com/pgshift/pgshift/internal/partition"
	"github.com/pgshift/pgshift/internal/schema"
	"github.com/pgshift/pgshift/internal/statefile"
	"github.com/pgshift/pgshift/internal/workpool"
)

func migrateCmd() *cobra.Command {
	var from, to int64
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Build, fill, index and attach every partition covering [from, to).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(loadConfig(), from, to)
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Lower sequence bound (inclusive)")
	cmd.Flags().Int64Var(&to, "to", 0, "Upper sequence bound (exclusive)")
	if err := cmd.MarkFlagRequired("to"); err != nil {
		panic(err)
	}
	return cmd
}

func runMigrate(config *configuration.PgshiftConfig, from, to int64) error {
	ctx := app.CreateContextWithShutdown()

	db, err := database.OpenPgxPool(config.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	exec := schema.NewExecutor(db)
	driver := partition.NewDriver(exec, config.Migration)

	partitions, err := partition.Plan(
		config.Migration.ParentTable, from, to, config.Migration.PartitionSize)
	if err != nil {
		return err
	}
	log.Infof("migrating %d partitions of %s over [%d, %d)",
		len(partitions), config.Migration.ParentTable, from, to)

	if err := driver.Prepare(ctx, exec, partitions); err != nil {
		return err
	}

	// The pool runs on a background context: shutdown signals go through the
	// kill switch instead, so in-flight statements land rather than abort.
	// Each statement is still bounded by its own timeout.
	pool, err := driver.Start(context.Background(), driver.InitialItems(partitions))
	if err != nil {
		return err
	}
	return superviseRun(config, pool)
}

// superviseRun wires a running pool to shutdown signals, metrics and
// progress logging, waits for it to terminate, and persists any failed or
// cancelled work for later resumption.
func superviseRun(config *configuration.PgshiftConfig, pool *workpool.Pool) error {
	stop := app.KillOnShutdown(pool.Kill)
	defer stop()

	if config.MetricsPort > 0 {
		shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
		defer shutdownMetricServer()
		m := metrics.NewMetrics(metrics.PgshiftMetricsPrefix)
		go m.RecordPeriodically(pool.Signals(), 5*time.Second, pool.Done())
	}
	go logProgress(pool)

	<-pool.Done()

	signals := pool.Signals()
	snap := signals.Snapshot()
	log.WithField("landed", snap.Landed).
		WithField("failed", snap.Failed).
		WithField("cancelled", snap.Cancelled).
		Info("run complete")

	path, err := statefile.Write(config.StateDirectory, signals)
	if err != nil {
		return err
	}
	if path != "" {
		log.Infof("failed/cancelled work written to %s, resume with: pgshift resume --state %s", path, path)
	}
	if snap.Failed > 0 {
		return errors.Errorf("%d work items failed terminally", snap.Failed)
	}
	return nil
}

func logProgress(pool *workpool.Pool) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := pool.Signals().Snapshot()
			log.Infof("progress: %d pending, %d in flight, %d landed, %d failed",
				snap.Pending, snap.InFlight, snap.Landed, snap.Failed)
		case <-pool.Done():
			return
		}
	}
}
