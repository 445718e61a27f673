package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCMD = &cobra.Command{
	Use:   "options-alert-bot",
	Short: "Options setup detection and trade lifecycle alert bot",
	Long: `Scans a universe of optionable symbols for bullish setups, posts
Telegram alerts, and tracks each alerted trade from setup through exit
with running P&L updates.`,
}

func main() {
	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "path to the yaml config file")
	rootCMD.AddCommand(serveCMD)
	rootCMD.AddCommand(sweepCMD)
	rootCMD.AddCommand(summaryCMD)
}
