package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/adapter/outbound/policyfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate <policy-dir>",
	Short: "Validate a policy directory without starting the server",
	Long: `Load and validate every .yaml/.yml file under the given directory,
reporting per-file and cross-file issues the same way the running
gateway's hot-reload watcher would. Exits non-zero if any file was
rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := policyfile.NewLoader()
		result, err := loader.LoadDirectory(args[0])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}

		if len(result.Errors) > 0 {
			for _, e := range result.Errors {
				fmt.Fprintln(os.Stderr, e)
			}
			return fmt.Errorf("%d issue(s) found", len(result.Errors))
		}

		agentCount := 0
		for _, doc := range result.Docs {
			agentCount += len(doc.Agents)
		}
		fmt.Printf("%d file(s), %d agent(s) validated cleanly\n", len(result.Docs), agentCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
