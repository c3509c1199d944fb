package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/config"
	"github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/hooks"
	"github.com/spf13/cobra"
)

// NewConfigCmd groups the commands that inspect and edit the karidf config file.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and modify the archive, logging and hook settings used by the retrieval commands",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return writeDefaultConfig(getConfigPath(), force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Replace an existing configuration file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "List every setting and its value",
			Args:  cobra.NoArgs,
			RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config, _ []string) error {
				return printSettings(cmd.OutOrStdout(), cfg)
			}),
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one setting, e.g. archive.url",
			Args:  cobra.ExactArgs(1),
			RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config, args []string) error {
				value, err := cfg.GetValue(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
				return err
			}),
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Change one setting, e.g. settings.log_dir",
			Args:  cobra.ExactArgs(2),
			RunE: withConfig(func(_ *cobra.Command, cfg *config.Config, args []string) error {
				return updateSetting(cfg, getConfigPath(), args[0], args[1])
			}),
		},
		initCmd,
		&cobra.Command{
			Use:       "hook-template TYPE",
			Short:     "Print a Tengo template for a hook",
			Long:      "Print a commented Tengo template for the post-resource or post-run hook",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{string(hooks.PostResource), string(hooks.PostRun)},
			RunE: func(cmd *cobra.Command, args []string) error {
				hookType := hooks.HookType(args[0])
				if hookType != hooks.PostResource && hookType != hooks.PostRun {
					return hooks.ErrUnsupportedHookType(args[0])
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), hooks.HookTemplate(hookType))
				return err
			},
		},
	)

	return cmd
}

type configAction func(cmd *cobra.Command, cfg *config.Config, args []string) error

func withConfig(action configAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return action(cmd, cfg, args)
	}
}

func printSettings(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SETTING\tVALUE")
	values := cfg.ToMap()
	for _, key := range cfg.Keys() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", key, values[key])
	}
	return tw.Flush()
}

func updateSetting(cfg *config.Config, path, key, value string) error {
	if err := cfg.SetValue(key, value); err != nil {
		return fmt.Errorf("cannot set %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveConfig(path); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	logger.Success("Configuration updated", logger.Fields{"key": key, "value": value})
	return nil
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s (use --force to replace it): %w", path, errors.ErrConfigFileExists)
	}
	if err := config.DefaultConfig().SaveConfig(path); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	logger.Success("Configuration file created", logger.Fields{"path": path})
	return nil
}
