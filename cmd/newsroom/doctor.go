package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/newsroom/internal/backend"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("newsroom doctor")
			fmt.Println()

			fmt.Println("Config:")
			fmt.Printf("  env:          %s\n", cfg.Server.Env)
			fmt.Printf("  addr:         %s\n", cfg.Server.Addr)
			fmt.Printf("  base_url:     %s\n", cfg.Server.BaseURL)
			fmt.Printf("  database:     %s\n", cfg.Database.Path)
			fmt.Printf("  cache:        ttl %s, %d entries\n", cfg.Cache.TTL, cfg.Cache.MaxEntries)
			if cfg.AdminTokenConfigured() {
				fmt.Printf("  admin token:  set\n")
			} else {
				fmt.Printf("  admin token:  not set (admin login disabled)\n")
			}
			fmt.Println()

			fmt.Println("Database:")
			st, err := openStore(cfg)
			if err != nil {
				fmt.Printf("  %-10s %v\n", "error", err)
			} else {
				v, err := st.Version()
				if err != nil {
					fmt.Printf("  %-10s %v\n", "error", err)
				} else {
					fmt.Printf("  %-10s %s\n", "schema", v)
				}
				st.Close()
			}
			fmt.Println()

			fmt.Println("Backend:")
			if cfg.Backend.URL == "" {
				fmt.Println("  not configured (set BACKEND_API_URL)")
				return nil
			}
			client := backend.New(cfg.Backend.URL, 10*time.Second, 0)
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			start := time.Now()
			if err := client.Ping(ctx); err != nil {
				fmt.Printf("  %-10s not reachable at %s: %v\n", "api", cfg.Backend.URL, err)
			} else {
				fmt.Printf("  %-10s reachable at %s (%s)\n", "api", cfg.Backend.URL, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}
}
