package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/tsukinoko-kun/ziplock/config"
	"github.com/tsukinoko-kun/ziplock/logger"
	"github.com/tsukinoko-kun/ziplock/meta"
)

var rootCmd = &cobra.Command{
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	Use:               "ziplock",
	Short:             "Vendor a resolved npm dependency tree into an offline archive",
	Long: `ziplock reads a resolved manifest (ziplock.json or npm-shrinkwrap.json) and
writes every package of its dependency tree below <vendor root>/ziplock,
fetching from the npm registry, git remotes or sibling workspace directories.

Without a subcommand ziplock runs "vendor".`,
	Version: meta.Version,
	Args:    cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(os.Stderr, flagVerbose)
	},
	RunE: runVendor,
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

var (
	flagVerbose bool
	flagConfig  string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default: ziplock.toml or ziplock.yaml in the working directory)")
	addRunFlags(rootCmd)
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig, meta.Pwd())
	if err != nil {
		return nil, err
	}
	applyRunFlags(cmd, cfg)
	logger.Printf("config: %s", configLocation(cfg))
	return cfg, cfg.Validate()
}

func configLocation(cfg *config.Config) string {
	if loc := cfg.GetFileLocation(); loc != "" {
		return loc
	}
	return "defaults"
}
