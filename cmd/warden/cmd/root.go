// Package cmd provides the CLI commands for Warden.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - policy-enforcing gateway for agent tool calls",
	Long: `Warden mediates tool invocations made by autonomous agents.

Every tool call arrives as an HTTP request carrying an agent identity
and optional caller-chain header; Warden consults a declarative policy
corpus to decide whether to allow, deny, or defer the call for human
approval, and only then dispatches to a downstream tool adapter.

Configuration:
  Config is loaded from warden.yaml in the current directory,
  $HOME/.warden/, or /etc/warden/.

  Environment variables override config values with the WARDEN_ prefix.
  Example: WARDEN_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the gateway server
  validate    Validate a policy directory without starting the server
  hash-key    Generate an Argon2id hash for the admin API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./warden.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
