package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/adapter/inbound/httpapi"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate an Argon2id hash for the admin API key",
	Long: `Generate an Argon2id hash of an admin API key for use in config.

The output is a PHC-format string that goes directly into the
auth.admin_api_key_hash field.

Example:
  warden hash-key "my-secret-api-key"

Security note: the key will appear in shell history. Consider an
environment variable instead:
  warden hash-key "$WARDEN_ADMIN_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := httpapi.HashAPIKey(args[0])
		if err != nil {
			return fmt.Errorf("hash key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
