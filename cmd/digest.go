package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tsukinoko-kun/ziplock/digest"
	"github.com/tsukinoko-kun/ziplock/vendoring"
)

var digestCmd = &cobra.Command{
	Use:   "digest [dir]",
	Short: "Print a content digest of the vendored tree",
	Long: `digest hashes every path, mode and file below dir, which defaults to
<vendor root>/ziplock. Two runs over the same manifest print the same digest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dir string
		if len(args) == 1 {
			dir = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir = filepath.Join(cfg.VendorRoot, vendoring.RootDir)
		}
		sum, err := digest.Tree(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, dir)
		return nil
	},
}

func init() {
	digestCmd.Flags().String("vendor-root", "", "directory the ziplock/ archive is written below")
	rootCmd.AddCommand(digestCmd)
}
