package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/webprobe/internal/config"
)

func newInitCommand(gs *globalState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Long: `init writes the default config to --config, or to the user config dir
when --config is not given. An existing file is left alone unless --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := gs.flags.configPath
			if path == "" {
				var err error
				if path, err = config.ConfigPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}

			cfg := config.Default()
			var err error
			if gs.flags.configPath == "" {
				err = cfg.Save()
			} else {
				err = cfg.SaveFile(path)
			}
			if err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Fprintln(gs.stdout, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
