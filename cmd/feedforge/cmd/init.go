package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feedforge/feedforge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a .feedforge.yaml populated with the default configuration so
the engine's settings can be reviewed and edited before the first run.`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false,
		"overwrite an existing config file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = ".feedforge.yaml"
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	cfg, err := config.NewLoaderWithViper(viper.GetViper()).Load()
	if err != nil {
		return fmt.Errorf("building default config: %w", err)
	}

	if err := config.WriteFile(path, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	cmd.Printf("wrote %s\n", path)
	return nil
}
