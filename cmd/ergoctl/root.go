package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ergoctl",
	Short: "Operator tooling for the ErgoLife accrual engine",
	Long:  "ergoctl applies database migrations, seeds houses and members,\nand mints bearer tokens for local testing.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

// cfg is loaded once; flags below override individual fields.
var cfg = config.Load()

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "Postgres connection string (POSTGRES_URL)")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
