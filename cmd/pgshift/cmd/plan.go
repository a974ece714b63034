package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/internal/partition"
)

func planCmd() *cobra.Command {
	var from, to int64
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the partitions a migration over [from, to) would build.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			partitions, err := partition.Plan(
				config.Migration.ParentTable, from, to, config.Migration.PartitionSize)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION\tFROM\tTO")
			for _, p := range partitions {
				fmt.Fprintf(w, "%s\t%d\t%d\n", p.Name, p.Lo, p.Hi)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Lower sequence bound (inclusive)")
	cmd.Flags().Int64Var(&to, "to", 0, "Upper sequence bound (exclusive)")
	if err := cmd.MarkFlagRequired("to"); err != nil {
		panic(err)
	}
	return cmd
}
