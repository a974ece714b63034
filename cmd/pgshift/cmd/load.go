package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/internal/bulkcopy"
	"github.com/pgshift/pgshift/internal/common/database"
	"github.com/pgshift/pgshift/internal/schema"
)

func loadCmd() *cobra.Command {
	var from, to int64
	var source, target string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk-copy a key range into an existing relation, without lifecycle phases.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if source == "" {
				source = config.Migration.SourceTable
			}
			if target == "" {
				target = config.Migration.ParentTable
			}

			db, err := database.OpenPgxPool(config.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			driver := bulkcopy.NewDriver(schema.NewExecutor(db), config.Migration)
			items := driver.InitialItems(source, target, from, to)
			log.Infof("loading %s from %s over [%d, %d) in %d batches", target, source, from, to, len(items))

			// Shutdown signals go through the kill switch, not context
			// cancellation, so in-flight batches land rather than abort.
			pool, err := driver.Start(context.Background(), items)
			if err != nil {
				return err
			}
			if err := superviseRun(config, pool); err != nil {
				return err
			}
			log.Infof("copied %d rows into %s", pool.Signals().Counter(bulkcopy.CounterRows(target)), target)
			return nil
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Lower key bound (inclusive)")
	cmd.Flags().Int64Var(&to, "to", 0, "Upper key bound (exclusive)")
	cmd.Flags().StringVar(&source, "source", "", "Source relation (defaults to migration.sourceTable)")
	cmd.Flags().StringVar(&target, "target", "", "Target relation (defaults to migration.parentTable)")
	if err := cmd.MarkFlagRequired("to"); err != nil {
		panic(err)
	}
	return cmd
}
