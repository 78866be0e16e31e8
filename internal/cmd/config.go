package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/rman/internal/config"
	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/ux"
)

func newConfigCmd(cc *CommandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective rman configuration",
		Long: `Show the settings rman uses after merging every layer:

  1. the "rman" section of the root package.json
  2. .rman.yml or .rman.yaml
  3. .rman.toml
  4. .rmanrc (JSON)
  5. the command.<name> section for the running command
  6. command-line flags

Examples:
  # View the merged configuration
  rman config view

  # View the settings "rman run" would use
  rman config view --command run

  # Get a single value
  rman config get concurrency

  # List the files that contributed settings
  rman config path
`,
	}

	var (
		command string
		yamlOut bool
	)
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Display the merged configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := cc.base
			if command != "" {
				var err error
				if cfg, err = cfg.ForCommand(command); err != nil {
					return err
				}
			}
			settings := cfg.Settings()
			if !cc.JSON && !yamlOut {
				out, err := yaml.Marshal(settings)
				if err != nil {
					return fmt.Errorf("failed to marshal configuration: %w", err)
				}
				_, err = cc.Out.Write(out)
				return err
			}
			f, err := ux.NewFormatter(ux.SelectFormat(cc.JSON, yamlOut), &ux.FormatterOptions{Writer: cc.Out})
			if err != nil {
				return err
			}
			return f.Format(settings)
		},
	}
	viewCmd.Flags().StringVar(&command, "command", "", "apply the command.<name> section for this command")
	viewCmd.Flags().BoolVar(&yamlOut, "yaml", false, "write the configuration as YAML")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a single setting",
		Long:  `Print one setting, using dot notation for nested keys (e.g. command.run.parallel).`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := cc.base.Get(args[0])
			if value == nil {
				return errors.New(errors.ErrCodeUsage, fmt.Sprintf("unknown configuration key: %s", args[0])).
					WithSuggestion("Known keys: " + strings.Join(knownKeys(), ", "))
			}
			if cc.JSON {
				return writeJSON(cc.Out, value)
			}
			_, err := fmt.Fprintln(cc.Out, value)
			return err
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "List the files that contributed settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources := cc.base.Sources()
			if cc.JSON {
				return writeJSON(cc.Out, sources)
			}
			if len(sources) == 0 {
				cc.Logger.Info("no configuration files found, using defaults")
				return nil
			}
			for _, src := range sources {
				fmt.Fprintln(cc.Out, src)
			}
			return nil
		},
	}

	configCmd.AddCommand(viewCmd, getCmd, pathCmd)
	return configCmd
}

func knownKeys() []string {
	keys := []string{
		config.KeyLogLevel,
		config.KeyConcurrency,
		config.KeyParallel,
		config.KeyBail,
		config.KeyProgress,
		config.KeyClient,
		config.KeyPackageOrder,
	}
	sort.Strings(keys)
	return keys
}
