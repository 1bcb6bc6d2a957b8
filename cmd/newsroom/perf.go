package main

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func perfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perf",
		Short: "Summarize recorded browser performance samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			report, err := st.PerfReport()
			if err != nil {
				return err
			}
			if len(report.Samples) == 0 {
				fmt.Println("no samples recorded")
				return nil
			}
			fmt.Printf("%d samples, last %s\n\n", len(report.Samples), humanize.Time(report.UpdatedAt))

			keys := make([]string, 0, len(report.Summary))
			for k := range report.Summary {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			fmt.Printf("%-40s %10s %8s\n", "PATH:METRIC", "AVG", "COUNT")
			for _, k := range keys {
				s := report.Summary[k]
				fmt.Printf("%-40s %10s %8s\n", k, humanize.FormatFloat("#,###.##", s.Avg), humanize.Comma(int64(s.Count)))
			}
			return nil
		},
	}
}
