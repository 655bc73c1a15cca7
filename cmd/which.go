package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tsukinoko-kun/ziplock/versionspec"
)

var whichCmd = &cobra.Command{
	Use:   "which <version spec>",
	Short: "Print which source a manifest version spec is fetched from",
	Example: `  ziplock which 2.0.5
  ziplock which git+https://github.com/michaelficarra/CoffeeScriptRedux.git#9895cd1
  ziplock which file://../promise-it`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := versionspec.Classify(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "source:  %s\n", spec.Kind())
		switch s := spec.(type) {
		case versionspec.Semver:
			fmt.Fprintf(out, "version: %s\n", s.Version)
		case versionspec.VcsRef:
			fmt.Fprintf(out, "url:     %s\n", s.URL)
			ref := s.Ref
			if ref == "" {
				ref = "(default branch)"
			}
			fmt.Fprintf(out, "ref:     %s\n", ref)
		case versionspec.LocalPath:
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "path:    %s\n", s.Resolve(cfg.WorkspaceRoot))
		}
		return nil
	},
}

func init() {
	addPathFlags(whichCmd)
	rootCmd.AddCommand(whichCmd)
}
