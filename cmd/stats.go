package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print summary statistics for the loaded data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.DataStats(ctx)
		if err != nil {
			return err
		}
		kpis, err := st.KPISummary(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"stats": stats,
			"kpis":  kpis,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
