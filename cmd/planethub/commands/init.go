package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planethub/planethub/pkg/config"
)

// defaultConfigFile is used when --config is not given.
const defaultConfigFile = "planethub.yaml"

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a configuration file populated with the default settings.

By default the file is created as planethub.yaml in the working directory.
Use --config to specify a custom path and --force to overwrite.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = defaultConfigFile
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.Save(config.GetDefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Printf("  2. Start the servers with: planethub start --config %s\n", path)
	return nil
}

// configPath resolves the config file for commands that read configuration:
// the --config flag if given, the default file if present, otherwise empty
// for pure defaults.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}
