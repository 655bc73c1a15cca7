package tree

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsukinoko-kun/ziplock/async"
	"github.com/tsukinoko-kun/ziplock/manifest"
)

func fixture() *manifest.Manifest {
	return &manifest.Manifest{
		Dependencies: map[string]*manifest.Dependency{
			"primus-emitter":      {Version: "2.0.5"},
			"dotty":               {Version: "0.0.2"},
			"coffee-script-redux": {Version: "git+https://github.com/michaelficarra/CoffeeScriptRedux.git#9895cd1641fdf3a2424e662ab7583726bb0e35b3"},
		},
		DevDependencies: map[string]*manifest.Dependency{
			"jasmine-n-matchers":        {Version: "0.0.3"},
			"jasmine-object-containing": {Version: "0.0.2"},
			"jasmine-stealth": {
				Version: "0.0.15",
				Dependencies: map[string]*manifest.Dependency{
					"coffee-script":   {Version: "1.6.3"},
					"minijasminenode": {Version: "0.2.7"},
				},
			},
			"promise-it": {Version: "file://../promise-it"},
		},
	}
}

type visit struct {
	section manifest.Section
	key     string
	spec    string
}

type recorder struct {
	mu     sync.Mutex
	visits []visit
}

func (r *recorder) visitor(op func(name string) error) Visitor {
	return func(ctx context.Context, section manifest.Section, name, versionSpec string, prefix PathPrefix) *async.Completion {
		r.mu.Lock()
		r.visits = append(r.visits, visit{
			section: section,
			key:     path.Join(append(append([]string{}, prefix...), name)...),
			spec:    versionSpec,
		})
		r.mu.Unlock()
		if op == nil {
			return nil
		}
		return async.Go(func() error { return op(name) })
	}
}

func (r *recorder) keys(section manifest.Section) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, v := range r.visits {
		if v.section == section {
			keys = append(keys, v.key)
		}
	}
	sort.Strings(keys)
	return keys
}

func TestClimbVisitsEveryNodeOnce(t *testing.T) {
	var r recorder
	err := Climb(context.Background(), fixture(), r.visitor(nil)).Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"coffee-script-redux",
		"dotty",
		"primus-emitter",
	}, r.keys(manifest.SectionDependency))

	assert.Equal(t, []string{
		"jasmine-n-matchers",
		"jasmine-object-containing",
		"jasmine-stealth",
		"jasmine-stealth/coffee-script",
		"jasmine-stealth/minijasminenode",
		"promise-it",
	}, r.keys(manifest.SectionDevDependency))
}

func TestClimbPassesVersionSpec(t *testing.T) {
	var r recorder
	require.NoError(t, Climb(context.Background(), fixture(), r.visitor(nil)).Wait(context.Background()))

	specs := map[string]string{}
	for _, v := range r.visits {
		specs[v.key] = v.spec
	}
	assert.Equal(t, "1.6.3", specs["jasmine-stealth/coffee-script"])
	assert.Equal(t, "file://../promise-it", specs["promise-it"])
}

func TestClimbWaitsForEveryOperation(t *testing.T) {
	var done atomic.Int32
	var r recorder
	c := Climb(context.Background(), fixture(), r.visitor(func(string) error {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
		return nil
	}))
	require.NoError(t, c.Wait(context.Background()))
	assert.Equal(t, int32(9), done.Load())
}

func TestClimbDoesNotWaitForParentBeforeChildren(t *testing.T) {
	release := make(chan struct{})
	var r recorder
	c := Climb(context.Background(), fixture(), r.visitor(func(name string) error {
		if name == "jasmine-stealth" {
			<-release
		}
		return nil
	}))

	// children are discovered while the parent operation is still blocked
	assert.Contains(t, r.keys(manifest.SectionDevDependency), "jasmine-stealth/coffee-script")
	close(release)
	require.NoError(t, c.Wait(context.Background()))
}

func TestClimbIsolatesFailures(t *testing.T) {
	unreachable := errors.New("remote unreachable")
	var completed sync.Map
	var r recorder
	c := Climb(context.Background(), fixture(), r.visitor(func(name string) error {
		if name == "coffee-script-redux" {
			return unreachable
		}
		time.Sleep(2 * time.Millisecond)
		completed.Store(name, true)
		return nil
	}))

	require.ErrorIs(t, c.Wait(context.Background()), unreachable)
	<-c.Settled()

	n := 0
	completed.Range(func(_, _ any) bool {
		n++
		return true
	})
	assert.Equal(t, 8, n)
}

func TestClimbDetectsCycle(t *testing.T) {
	m := &manifest.Manifest{
		Dependencies: map[string]*manifest.Dependency{
			"a": {
				Version: "1.0.0",
				Dependencies: map[string]*manifest.Dependency{
					"b": {
						Version: "1.0.0",
						Dependencies: map[string]*manifest.Dependency{
							"a": {Version: "1.0.0"},
						},
					},
				},
			},
		},
	}
	var r recorder
	err := Climb(context.Background(), m, r.visitor(nil)).Wait(context.Background())
	require.ErrorIs(t, err, ErrTreeIntegrity)
	assert.Contains(t, err.Error(), "a -> b -> a")
	assert.Equal(t, []string{"a", "a/b"}, r.keys(manifest.SectionDependency))
}

func TestClimbPointerCycleTerminates(t *testing.T) {
	a := &manifest.Dependency{Version: "1.0.0"}
	a.Dependencies = map[string]*manifest.Dependency{"a": a}
	m := &manifest.Manifest{Dependencies: map[string]*manifest.Dependency{"a": a}}

	var r recorder
	err := Climb(context.Background(), m, r.visitor(nil)).Wait(context.Background())
	require.ErrorIs(t, err, ErrTreeIntegrity)
}

func TestClimbRejectsMalformedEntries(t *testing.T) {
	for name, m := range map[string]*manifest.Manifest{
		"nil entry":     {Dependencies: map[string]*manifest.Dependency{"x": nil}},
		"empty version": {DevDependencies: map[string]*manifest.Dependency{"x": {}}},
		"empty name":    {Dependencies: map[string]*manifest.Dependency{"": {Version: "1.0.0"}}},
	} {
		t.Run(name, func(t *testing.T) {
			var r recorder
			err := Climb(context.Background(), m, r.visitor(nil)).Wait(context.Background())
			require.ErrorIs(t, err, ErrTreeIntegrity)
			assert.Empty(t, r.visits)
		})
	}
}

func TestClimbRejectsInvalidNames(t *testing.T) {
	for _, bad := range []string{"..", ".", "../x", "a/b", "@scope/", "@a/b/c", "/abs", `a\b`, "c:x"} {
		t.Run(bad, func(t *testing.T) {
			var r recorder
			m := &manifest.Manifest{Dependencies: map[string]*manifest.Dependency{bad: {Version: "1.0.0"}}}
			err := Climb(context.Background(), m, r.visitor(nil)).Wait(context.Background())
			require.ErrorIs(t, err, ErrTreeIntegrity)
			assert.Empty(t, r.visits)
		})
	}
	for _, ok := range []string{"left-pad", "@types/node", "a.b"} {
		assert.True(t, validName(ok), ok)
	}
}

func TestClimbSkipsChildrenOfInvalidName(t *testing.T) {
	m := &manifest.Manifest{
		Dependencies: map[string]*manifest.Dependency{
			"../../../escaped": {
				Version: "1.0.0",
				Dependencies: map[string]*manifest.Dependency{
					"pwn": {Version: "1.0.0"},
				},
			},
			"left-pad": {Version: "1.3.0"},
		},
	}
	var r recorder
	err := Climb(context.Background(), m, r.visitor(nil)).Wait(context.Background())
	require.ErrorIs(t, err, ErrTreeIntegrity)
	assert.Equal(t, []string{"left-pad"}, r.keys(manifest.SectionDependency))
}

func TestClimbNilManifest(t *testing.T) {
	var r recorder
	err := Climb(context.Background(), nil, r.visitor(nil)).Wait(context.Background())
	require.ErrorIs(t, err, ErrTreeIntegrity)
}

func TestClimbEmptyManifest(t *testing.T) {
	var r recorder
	require.NoError(t, Climb(context.Background(), &manifest.Manifest{}, r.visitor(nil)).Wait(context.Background()))
	assert.Empty(t, r.visits)
}

func TestPathPrefix(t *testing.T) {
	var p PathPrefix
	assert.Equal(t, "", p.String())
	a := p.With("jasmine-stealth")
	b := a.With("coffee-script")
	assert.Equal(t, PathPrefix{"jasmine-stealth"}, a)
	assert.Equal(t, "jasmine-stealth -> coffee-script", b.String())
	assert.True(t, b.Contains("jasmine-stealth"))
	assert.False(t, a.Contains("coffee-script"))

	base := errors.New("x")
	assert.Same(t, base, p.Err(base))
	assert.ErrorIs(t, a.Err(base), base)
	assert.Equal(t, "jasmine-stealth: x", a.Err(base).Error())
}
