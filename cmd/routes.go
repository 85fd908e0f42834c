package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/router"
)

var routesJSON bool

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the routing table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeOffline); err != nil {
			return err
		}
		table, err := buildTable(cfg)
		if err != nil {
			return err
		}
		if routesJSON {
			return writeJSON(cmd.OutOrStdout(), table.Routes())
		}
		return printRoutes(cmd.OutOrStdout(), table)
	},
}

func init() {
	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(routesCmd)
}

func printRoutes(out io.Writer, table *router.Table) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tPROVIDER\tPRIMARY\tFALLBACK\t$/MTOK IN\t$/MTOK OUT")
	for _, r := range table.Routes() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\n",
			r.TaskType, r.Provider, r.PrimaryModel, r.FallbackModel, r.Cost.Input, r.Cost.Output)
	}
	return w.Flush()
}
