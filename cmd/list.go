package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/tsukinoko-kun/ziplock/async"
	"github.com/tsukinoko-kun/ziplock/manifest"
	"github.com/tsukinoko-kun/ziplock/tree"
	"github.com/tsukinoko-kun/ziplock/versionspec"
	"github.com/tsukinoko-kun/ziplock/vendoring"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every package of the manifest with its source and target path",
	Long: `list walks the manifest like "vendor" does but only prints what would be
fetched and where it would land. Nothing is downloaded or written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return err
		}

		var (
			mu   sync.Mutex
			rows [][]string
		)
		visit := func(ctx context.Context, section manifest.Section, name, versionSpec string, prefix tree.PathPrefix) *async.Completion {
			pkg := prefix.With(name).String()
			kind := "invalid"
			spec, classifyErr := versionspec.Classify(versionSpec)
			if classifyErr == nil {
				kind = spec.Kind().String()
			}
			mu.Lock()
			rows = append(rows, []string{
				section.String(),
				pkg,
				versionSpec,
				kind,
				vendoring.BuildTargetPath(cfg.VendorRoot, section, prefix, name),
			})
			mu.Unlock()
			if classifyErr != nil {
				return async.Rejected(fmt.Errorf("%s: %w", pkg, classifyErr))
			}
			return async.Resolved()
		}

		all := tree.Climb(cmd.Context(), m, visit)
		<-all.Settled()

		slices.SortFunc(rows, func(a, b []string) int {
			if c := strings.Compare(a[0], b[0]); c != 0 {
				return c
			}
			return strings.Compare(a[1], b[1])
		})

		headerStyle := lipgloss.NewStyle().Bold(true)
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("Section", "Package", "Version", "Source", "Target").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		fmt.Fprintln(cmd.OutOrStdout(), t)
		fmt.Fprintf(cmd.OutOrStdout(), "%d packages from %s\n", len(rows), m.GetFileLocation())

		return all.Err()
	},
}

func init() {
	addPathFlags(listCmd)
	rootCmd.AddCommand(listCmd)
}
