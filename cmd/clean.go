package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tsukinoko-kun/ziplock/logger"
	"github.com/tsukinoko-kun/ziplock/utils"
	"github.com/tsukinoko-kun/ziplock/vendoring"
	"go.trai.ch/zerr"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the vendored archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dirs := []string{filepath.Join(cfg.VendorRoot, vendoring.RootDir)}
		if utils.Must(cmd.Flags().GetBool("cache")) && cfg.CacheDir != "" {
			dirs = append(dirs, cfg.CacheDir)
		}
		for _, dir := range dirs {
			if err := os.RemoveAll(dir); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to remove"), "path", dir)
			}
			logger.Infof("removed %s", dir)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().String("vendor-root", "", "directory the ziplock/ archive is written below")
	cleanCmd.Flags().String("cache-dir", "", "tarball cache directory")
	cleanCmd.Flags().Bool("cache", false, "also remove the tarball cache")
	rootCmd.AddCommand(cleanCmd)
}
