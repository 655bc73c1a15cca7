package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tsukinoko-kun/ziplock/config"
	"github.com/tsukinoko-kun/ziplock/localdir"
	"github.com/tsukinoko-kun/ziplock/logger"
	"github.com/tsukinoko-kun/ziplock/manifest"
	"github.com/tsukinoko-kun/ziplock/metrics"
	"github.com/tsukinoko-kun/ziplock/registry"
	"github.com/tsukinoko-kun/ziplock/statusui"
	"github.com/tsukinoko-kun/ziplock/telemetry"
	"github.com/tsukinoko-kun/ziplock/utils"
	"github.com/tsukinoko-kun/ziplock/vcs"
	"github.com/tsukinoko-kun/ziplock/vendoring"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/zerr"
)

var vendorCmd = &cobra.Command{
	Use: "vendor",
	Aliases: []string{
		"v",
		"zip",
	},
	Short: "Vendor every package of the manifest into <vendor root>/ziplock",
	Args:  cobra.NoArgs,
	RunE:  runVendor,
}

func init() {
	addRunFlags(vendorCmd)
	rootCmd.AddCommand(vendorCmd)
}

// addPathFlags registers the overrides every command reading a manifest needs.
func addPathFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("manifest", "m", "", "manifest file or directory containing ziplock.json")
	fs.String("vendor-root", "", "directory the ziplock/ archive is written below")
	fs.String("workspace", "", "directory file: specs are resolved against")
}

// addRunFlags registers the config overrides and run options of a vendoring run.
func addRunFlags(cmd *cobra.Command) {
	addPathFlags(cmd)
	fs := cmd.Flags()
	fs.String("registry", "", "npm registry base URL")
	fs.Int("concurrency", 0, "maximum simultaneous fetches, 0 for unbounded")
	fs.Bool("cleanup-on-failure", false, "remove the partial archive when a package fails")
	fs.String("cache-dir", "", "keep downloaded tarballs in this directory")
	fs.String("metrics-file", "", "write Prometheus metrics of the run to this file")
	fs.String("trace-file", "", "write one JSON line per finished span to this file")
	fs.Bool("no-tui", false, "disable the live status display")
}

// applyRunFlags copies every flag the user set onto cfg. Flags cmd does not
// define are skipped.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	abs := func(p string) string {
		return utils.Must(filepath.Abs(p))
	}
	if changed(fs, "manifest") {
		cfg.Manifest = abs(utils.Must(fs.GetString("manifest")))
	}
	if changed(fs, "vendor-root") {
		cfg.VendorRoot = abs(utils.Must(fs.GetString("vendor-root")))
	}
	if changed(fs, "workspace") {
		cfg.WorkspaceRoot = abs(utils.Must(fs.GetString("workspace")))
	}
	if changed(fs, "registry") {
		cfg.Registry = utils.Must(fs.GetString("registry"))
	}
	if changed(fs, "concurrency") {
		cfg.Concurrency = utils.Must(fs.GetInt("concurrency"))
	}
	if changed(fs, "cleanup-on-failure") {
		cfg.CleanupOnFailure = utils.Must(fs.GetBool("cleanup-on-failure"))
	}
	if changed(fs, "cache-dir") {
		cfg.CacheDir = abs(utils.Must(fs.GetString("cache-dir")))
	}
}

func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}

func runVendor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return err
	}
	logger.Printf("manifest: %s", m.GetFileLocation())

	if !utils.Must(cmd.Flags().GetBool("no-tui")) {
		if err := statusui.Start(); err != nil {
			return err
		}
		defer statusui.Stop()
		logger.Init(statusui.GetLogWriter(), flagVerbose)
	}

	tp, err := newTracerProvider(utils.Must(cmd.Flags().GetString("trace-file")))
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(cmd.Context())); err != nil {
			logger.Errorf("%v", err)
		}
	}()

	met := metrics.New()
	engine := vendoring.NewEngine(
		cfg,
		newArchivers(cfg),
		statusui.NewReporter(),
		vendoring.WithMetrics(met),
		vendoring.WithTracer(telemetry.Tracer(tp)),
	)
	runErr := engine.Run(cmd.Context(), m)

	if path := utils.Must(cmd.Flags().GetString("metrics-file")); path != "" {
		if err := met.WriteTextfile(path); err != nil {
			logger.Errorf("%v", err)
		}
	}
	return runErr
}

// newTracerProvider logs every span at debug level and, with a path, also
// appends it to that file.
func newTracerProvider(path string) (*sdktrace.TracerProvider, error) {
	if path == "" {
		return telemetry.NewProvider(), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create trace file")
	}
	return telemetry.NewProvider(sdktrace.NewSimpleSpanProcessor(telemetry.NewFileExporter(f))), nil
}

func newArchivers(cfg *config.Config) vendoring.Archivers {
	return vendoring.Archivers{
		Tarball: registry.NewArchiver(
			cfg.Registry,
			registry.WithCacheDir(cfg.CacheDir),
			registry.WithDownloadTimeout(cfg.Timeouts.Registry),
		),
		Repo:  vcs.NewArchiver(),
		Local: localdir.NewCopier(cfg.Exclude...),
	}
}
