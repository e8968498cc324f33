package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ratnathegod/inference-profile-bench/internal/bench"
)

var promptsFile string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Print the prompt rotation a run would use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prompts := bench.DefaultPrompts
		if promptsFile != "" {
			p, err := bench.LoadPrompts(promptsFile)
			if err != nil {
				return err
			}
			prompts = p
		}
		out := cmd.OutOrStdout()
		for i, p := range prompts {
			fmt.Fprintf(out, "%d\t%s\n", i, p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.Flags().StringVarP(&promptsFile, "prompts", "p", "", "YAML file with a prompts: list")
}
