// Package vendoring turns a resolved manifest into an offline archive below
// <vendor root>/ziplock by dispatching every node to the archiver matching
// its version spec.
package vendoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tsukinoko-kun/ziplock/async"
	"github.com/tsukinoko-kun/ziplock/config"
	"github.com/tsukinoko-kun/ziplock/logger"
	"github.com/tsukinoko-kun/ziplock/manifest"
	"github.com/tsukinoko-kun/ziplock/metrics"
	"github.com/tsukinoko-kun/ziplock/registry"
	"github.com/tsukinoko-kun/ziplock/tree"
	"github.com/tsukinoko-kun/ziplock/versionspec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

type TarballFetcher interface {
	FetchTarball(ctx context.Context, name, version string, opts registry.ExtractOptions) error
}

type RepoFetcher interface {
	FetchRepo(ctx context.Context, rawSpec, path string) error
}

type LocalCopier interface {
	CopyLocal(ctx context.Context, source, target string) error
}

// Reporter receives the user-facing messages of a run.
type Reporter interface {
	Write(msg string)
	Error(msg string)
	Green(msg string)
}

type Archivers struct {
	Tarball TarballFetcher
	Repo    RepoFetcher
	Local   LocalCopier
}

type Engine struct {
	cfg       *config.Config
	archivers Archivers
	reporter  Reporter
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	sem       *semaphore.Weighted

	dispatched atomic.Int64
	failuresMu sync.Mutex
	failures   []*FetchError
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func NewEngine(cfg *config.Config, archivers Archivers, reporter Reporter, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		archivers: archivers,
		reporter:  reporter,
		tracer:    otel.Tracer("github.com/tsukinoko-kun/ziplock/vendoring"),
	}
	if cfg.Concurrency > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Visit classifies versionSpec and starts the matching archiver for the node
// in its own goroutine. It never blocks on the archiver.
func (e *Engine) Visit(ctx context.Context, section manifest.Section, name, versionSpec string, prefix tree.PathPrefix) *async.Completion {
	fe := &FetchError{
		Section: section,
		Prefix:  prefix,
		Name:    name,
		Spec:    versionSpec,
		Path:    BuildTargetPath(e.cfg.VendorRoot, section, prefix, name),
	}

	if err := checkTarget(e.cfg.VendorRoot, section, fe.Path); err != nil {
		fe.Err = err
		return async.Rejected(e.fail(fe))
	}
	spec, err := versionspec.Classify(versionSpec)
	if err != nil {
		fe.Err = err
		return async.Rejected(e.fail(fe))
	}

	e.dispatched.Add(1)
	return async.Go(func() error {
		if err := e.dispatch(ctx, spec, fe); err != nil {
			fe.Err = err
			return e.fail(fe)
		}
		return nil
	})
}

func (e *Engine) dispatch(ctx context.Context, spec versionspec.Spec, fe *FetchError) (err error) {
	kind := spec.Kind()
	ctx, span := e.tracer.Start(ctx, "vendor "+fe.Name, trace.WithAttributes(
		attribute.String("ziplock.package", fe.Name),
		attribute.String("ziplock.spec", fe.Spec),
		attribute.String("ziplock.kind", kind.String()),
		attribute.String("ziplock.section", fe.Section.String()),
		attribute.String("ziplock.path", fe.Path),
	))
	start := time.Now()
	defer func() {
		e.metrics.ObserveFetch(kind.String(), err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer e.sem.Release(1)
	}

	if d := e.timeout(kind); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	logger.Printf("vendoring %s (%s) into %s", fe.Name, fe.Spec, fe.Path)

	switch s := spec.(type) {
	case versionspec.Semver:
		return e.archivers.Tarball.FetchTarball(ctx, fe.Name, strings.TrimPrefix(s.Version, "v"), registry.ExtractOptions{
			Path:  fe.Path,
			Strip: DefaultStrip,
		})
	case versionspec.VcsRef:
		return e.archivers.Repo.FetchRepo(ctx, fe.Spec, fe.Path)
	case versionspec.LocalPath:
		return e.archivers.Local.CopyLocal(ctx, s.Resolve(e.cfg.WorkspaceRoot), fe.Path)
	default:
		return fmt.Errorf("%w: %s", versionspec.ErrUnrecognizedVersionSpec, fe.Spec)
	}
}

func (e *Engine) timeout(kind versionspec.Kind) time.Duration {
	switch kind {
	case versionspec.KindSemver:
		return e.cfg.Timeouts.Registry
	case versionspec.KindVcs:
		return e.cfg.Timeouts.VCS
	case versionspec.KindLocal:
		return e.cfg.Timeouts.Local
	}
	return 0
}

func (e *Engine) fail(fe *FetchError) error {
	e.failuresMu.Lock()
	e.failures = append(e.failures, fe)
	e.failuresMu.Unlock()
	return fe
}

// Failures returns every node that failed so far.
func (e *Engine) Failures() []*FetchError {
	e.failuresMu.Lock()
	defer e.failuresMu.Unlock()
	return append([]*FetchError(nil), e.failures...)
}

// Dispatched is the number of nodes handed to an archiver.
func (e *Engine) Dispatched() int {
	return int(e.dispatched.Load())
}

// Run vendors every node of m. It waits for all started operations, also
// after the first failure, and returns that first failure. An Engine serves
// a single run.
func (e *Engine) Run(ctx context.Context, m *manifest.Manifest) error {
	runID := uuid.New()
	log := logger.L().With("run", runID.String())
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "ziplock run", trace.WithAttributes(
		attribute.String("ziplock.run_id", runID.String()),
		attribute.String("ziplock.vendor_root", e.cfg.VendorRoot),
	))
	defer span.End()

	if m != nil {
		e.reporter.Write(fmt.Sprintf("Vendoring %d packages into %s", m.Count(), filepath.Join(e.cfg.VendorRoot, RootDir)))
	}
	log.Debug("run started", "manifest", manifestLocation(m), "concurrency", e.cfg.Concurrency)

	all := tree.Climb(ctx, m, e.Visit)
	<-all.Done()
	err := all.Err()
	<-all.Settled()

	e.metrics.ObserveRun(err, e.Dispatched(), time.Since(start))

	if err == nil {
		log.Info("run finished", "packages", e.Dispatched(), "took", time.Since(start).Round(time.Millisecond))
		e.reporter.Green("Vendoring complete!")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	failures := e.Failures()
	for _, fe := range failures {
		log.Error("package failed", "package", fe.Name, "spec", fe.Spec, "path", fe.Path, "err", fe.Err)
		e.reporter.Error(fe.Error())
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		// integrity violations never reach an archiver
		log.Error("run failed", "err", err)
		e.reporter.Error(err.Error())
	}

	if e.cfg.CleanupOnFailure {
		root := filepath.Join(e.cfg.VendorRoot, RootDir)
		if rmErr := os.RemoveAll(root); rmErr != nil {
			log.Error("cleanup failed", "path", root, "err", rmErr)
		} else {
			log.Info("removed partial archive", "path", root)
		}
	}

	return zerr.With(err, "run", runID.String())
}

func manifestLocation(m *manifest.Manifest) string {
	if m == nil {
		return ""
	}
	return m.GetFileLocation()
}
