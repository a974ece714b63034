package cmd

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/internal/bulkcopy"
	"github.com/pgshift/pgshift/internal/common/database"
	"github.com/pgshift/pgshift/internal/partition"
	"github.com/pgshift/pgshift/internal/schema"
	"github.com/pgshift/pgshift/internal/statefile"
	"github.com/pgshift/pgshift/internal/workpool"
)

func resumeCmd() *cobra.Command {
	var statePath string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Re-enqueue the failed and cancelled items of an earlier run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			items, counters, err := statefile.Read(statePath)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				log.Info("state file contains no items, nothing to resume")
				return nil
			}
			log.Infof("resuming %d items from %s", len(items), statePath)

			db, err := database.OpenPgxPool(config.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			exec := schema.NewExecutor(db)

			// A state file holds items from one driver: lifecycle items
			// from migrate, batch items from load. The counters carry the
			// earlier run's coverage bookkeeping into the new pool. The pool
			// runs on a background context; shutdown goes through the kill
			// switch.
			ctx := context.Background()
			var pool *workpool.Pool
			switch items[0].Spec.(type) {
			case partition.PhaseSpec, partition.CopySpec:
				pool, err = partition.NewDriver(exec, config.Migration).Resume(ctx, items, counters)
			case bulkcopy.BatchSpec:
				pool, err = bulkcopy.NewDriver(exec, config.Migration).Resume(ctx, items, counters)
			default:
				return errors.Errorf("state file contains unresumable spec type %T", items[0].Spec)
			}
			if err != nil {
				return err
			}
			return superviseRun(config, pool)
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "", "Path to the state file written by an earlier run")
	if err := cmd.MarkFlagRequired("state"); err != nil {
		panic(err)
	}
	return cmd
}
