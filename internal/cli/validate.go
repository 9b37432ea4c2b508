package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/ruleconf"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and compile every rule",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	n, err := validate(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d rules)\n", configPath, n)
	return nil
}

// validate parses a config and compiles its rules, returning the rule count.
func validate(data []byte) (int, error) {
	cfg, err := config.Parse(data)
	if err != nil {
		return 0, err
	}
	compiler, err := ruleconf.NewCompiler()
	if err != nil {
		return 0, err
	}
	if _, err := compiler.CompileAll(cfg.Rules); err != nil {
		return 0, fmt.Errorf("rules: %w", err)
	}
	return len(cfg.Rules), nil
}
