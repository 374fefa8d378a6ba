package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Tally — membership and points backend",
	Long:  "Tally is the backend for a membership reward dashboard: it keeps per-tenant point balances, a catalog of purchasable membership plans, and the request/approval workflow that turns spent points into free-time access windows.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/tally.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
