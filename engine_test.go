package modelsync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jward/modelsync/internal/config"
	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/reconcile"
	"github.com/jward/modelsync/internal/rules"
	"github.com/jward/modelsync/internal/scheduler"
	"github.com/jward/modelsync/internal/serializer"
)

const modulesXML = `<?xml version="1.0" encoding="UTF-8"?>
<project version="4">
  <component name="ProjectModuleManager">
    <modules>
      <module fileurl="file://$PROJECT_DIR$/app/app.iml" filepath="$PROJECT_DIR$/app/app.iml" />
      <module fileurl="file://$PROJECT_DIR$/core/core.iml" filepath="$PROJECT_DIR$/core/core.iml" />
    </modules>
  </component>
</project>
`

const appIml = `<?xml version="1.0" encoding="UTF-8"?>
<module type="JAVA_MODULE" version="4">
  <component name="NewModuleRootManager">
    <content url="file://$MODULE_DIR$">
      <sourceFolder url="file://$MODULE_DIR$/src" isTestSource="false" />
    </content>
    <orderEntry type="inheritedJdk" />
    <orderEntry type="sourceFolder" forTests="false" />
    <orderEntry type="library" name="gson" level="project" />
    <orderEntry type="module" module-name="core" />
  </component>
</module>
`

const coreIml = `<?xml version="1.0" encoding="UTF-8"?>
<module type="JAVA_MODULE" version="4">
  <component name="NewModuleRootManager">
    <content url="file://$MODULE_DIR$">
      <sourceFolder url="file://$MODULE_DIR$/src" isTestSource="false" />
    </content>
    <orderEntry type="inheritedJdk" />
    <orderEntry type="sourceFolder" forTests="false" />
  </component>
</module>
`

const coreImlWithTests = `<?xml version="1.0" encoding="UTF-8"?>
<module type="JAVA_MODULE" version="4">
  <component name="NewModuleRootManager">
    <content url="file://$MODULE_DIR$">
      <sourceFolder url="file://$MODULE_DIR$/src" isTestSource="false" />
      <sourceFolder url="file://$MODULE_DIR$/test" isTestSource="true" />
    </content>
    <orderEntry type="inheritedJdk" />
    <orderEntry type="sourceFolder" forTests="false" />
  </component>
</module>
`

const gsonXML = `<?xml version="1.0" encoding="UTF-8"?>
<component name="libraryTable">
  <library name="gson">
    <CLASSES>
      <root url="jar://$MAVEN_REPOSITORY$/gson.jar!/" />
    </CLASSES>
    <JAVADOC />
    <SOURCES />
  </library>
</component>
`

const distXML = `<?xml version="1.0" encoding="UTF-8"?>
<component name="ArtifactManager">
  <artifact type="jar" name="dist">
    <root id="archive" name="dist.jar">
      <element id="module-output" name="core" />
      <element id="library" level="project" name="gson" />
    </root>
  </artifact>
</component>
`

const jdkTableXML = `<?xml version="1.0" encoding="UTF-8"?>
<application>
  <component name="ProjectJdkTable">
    <jdk version="2">
      <name value="17" />
      <type value="JavaSDK" />
      <version value="17.0.9" />
      <homePath value="/usr/lib/jvm/java-17" />
      <roots>
        <root url="jrt:///usr/lib/jvm/java-17!/java.base" type="CLASSES" />
      </roots>
    </jdk>
  </component>
</application>
`

func projectFS() *filestore.MemFS {
	mem := filestore.NewMemFS()
	mem.AddFile(".idea/modules.xml", modulesXML)
	mem.AddFile("app/app.iml", appIml)
	mem.AddFile("core/core.iml", coreIml)
	mem.AddFile(".idea/libraries/gson.xml", gsonXML)
	mem.AddFile(".idea/artifacts/dist.xml", distXML)
	return mem
}

func newLoaded(t *testing.T, mem *filestore.MemFS, opts ...Option) *Engine {
	t.Helper()
	e, err := New("/project", append([]Option{WithFS(mem)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Load(context.Background()))
	return e
}

func renameLibrary(to string) func(graph.Data) graph.Data {
	return func(d graph.Data) graph.Data {
		lib := d.(graph.LibraryData)
		lib.Name = to
		return lib
	}
}

func TestEngine_LoadAndSummary(t *testing.T) {
	t.Parallel()
	e := newLoaded(t, projectFS())

	s := e.Summary()
	assert.Equal(t, []string{"app", "core"}, s.Modules)
	assert.Empty(t, s.UnloadedModules)
	assert.Equal(t, 0, s.Orphans)
	assert.Equal(t, 5, s.Files)
	assert.Equal(t, 1, s.Counts["library"])
	assert.Equal(t, 1, s.Counts["artifact"])
	assert.Equal(t, 2, s.Counts["module"])
	assert.Equal(t, 0, s.Pending)
	assert.True(t, e.CheckConsistency().OK())
}

func TestEngine_NotLoaded(t *testing.T) {
	t.Parallel()
	e, err := New("/project", WithFS(projectFS()))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Reload(context.Background(), reconcile.Change{Changed: []string{"core/core.iml"}})
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = e.Update(context.Background(), func(_, _ *graph.Builder) error { return nil })
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = e.SaveAll(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestEngine_ReloadPreservesIdentity(t *testing.T) {
	t.Parallel()
	mem := projectFS()
	e := newLoaded(t, mem)
	before := e.State()
	app, ok := before.Main.Resolve(graph.ModuleID("app"))
	require.True(t, ok)

	mem.AddFile("core/core.iml", coreImlWithTests)
	affected, err := e.Reload(context.Background(), reconcile.Change{Changed: []string{"core/core.iml"}})
	require.NoError(t, err)
	assert.Equal(t, []graph.EntitySource{graph.ExactFile("core/core.iml")}, affected)

	after := e.State()
	got, ok := after.Main.Resolve(graph.ModuleID("app"))
	require.True(t, ok)
	assert.Equal(t, app.ID, got.ID)
	assert.Equal(t, countKind(before.Main, graph.KindSourceRoot)+1, countKind(after.Main, graph.KindSourceRoot))

	// An empty change is a no-op.
	affected, err = e.Reload(context.Background(), reconcile.Change{})
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func countKind(r graph.Reader, k graph.Kind) int {
	n := 0
	for range r.Entities(k) {
		n++
	}
	return n
}

func TestEngine_RenameAndSaveChanged(t *testing.T) {
	t.Parallel()
	mem := projectFS()
	e := newLoaded(t, mem)
	ctx := context.Background()

	sid, err := e.Rename(ctx, graph.LibraryID(graph.ProjectTable, "gson"), renameLibrary("gson-2.10"))
	require.NoError(t, err)
	assert.Equal(t, graph.LibraryID(graph.ProjectTable, "gson-2.10"), sid)
	assert.Len(t, e.Pending(), 3, "library file, module file, artifact file")

	res, err := e.SaveChanged(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".idea/artifacts/dist.xml", ".idea/libraries/gson_2_10.xml", "app/app.iml"}, res.Written)
	assert.Equal(t, []string{".idea/libraries/gson.xml"}, res.Deleted)
	assert.Empty(t, e.Pending())
	assert.True(t, e.CheckConsistency().OK(), "%v", e.CheckConsistency().Err())

	data, err := mem.ReadFile("app/app.iml")
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="gson-2.10"`)

	// Nothing left to save.
	res, err = e.SaveChanged(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Written)
}

func TestEngine_RenameReachesUnloadedPartition(t *testing.T) {
	t.Parallel()
	e := newLoaded(t, projectFS(), WithUnloaded(rules.Static("app")))
	st := e.State()
	_, ok := st.Unloaded.Resolve(graph.ModuleID("app"))
	require.True(t, ok)

	_, err := e.Rename(context.Background(), graph.LibraryID(graph.ProjectTable, "gson"), renameLibrary("gson-2.10"))
	require.NoError(t, err)

	app, ok := e.State().Unloaded.Resolve(graph.ModuleID("app"))
	require.True(t, ok)
	deps := app.Data.(graph.ModuleData).Dependencies
	var names []string
	for _, d := range deps {
		if d.Kind == graph.DependencyLibrary {
			names = append(names, d.Name)
		}
	}
	assert.Equal(t, []string{"gson-2.10"}, names)
}

func TestEngine_RenameUnknown(t *testing.T) {
	t.Parallel()
	e := newLoaded(t, projectFS())
	_, err := e.Rename(context.Background(), graph.LibraryID(graph.ProjectTable, "nope"), renameLibrary("x"))
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)
	assert.Empty(t, e.Pending())
}

func TestEngine_UpdateErrorDiscards(t *testing.T) {
	t.Parallel()
	e := newLoaded(t, projectFS())
	before := e.State()
	boom := errors.New("boom")

	_, err := e.Update(context.Background(), func(main, _ *graph.Builder) error {
		core, _ := main.Resolve(graph.ModuleID("core"))
		if _, err := main.Remove(core.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Same(t, before.Main, e.State().Main)
	assert.Empty(t, e.Pending())
}

func TestEngine_UpdateCascadesAndSaves(t *testing.T) {
	t.Parallel()
	mem := projectFS()
	e := newLoaded(t, mem)
	ctx := context.Background()

	sources, err := e.Update(ctx, func(main, _ *graph.Builder) error {
		core, _ := main.Resolve(graph.ModuleID("core"))
		_, err := main.Remove(core.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []graph.EntitySource{graph.ExactFile("core/core.iml")}, sources)
	assert.Equal(t, 1, countKind(e.State().Main, graph.KindSourceRoot), "core's roots went with it")

	res, err := e.SaveChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"core/core.iml"}, res.Deleted)
	assert.False(t, mem.Exists("core/core.iml"))
	data, _ := mem.ReadFile(".idea/modules.xml")
	assert.NotContains(t, string(data), "core.iml")
}

func TestEngine_SetUnloaded(t *testing.T) {
	t.Parallel()
	e := newLoaded(t, projectFS())
	ctx := context.Background()
	dump, err := e.Dump(PartitionMain)
	require.NoError(t, err)

	moved, err := e.SetUnloaded(ctx, []string{"core"})
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, moved)
	s := e.Summary()
	assert.Equal(t, []string{"app"}, s.Modules)
	assert.Equal(t, []string{"core"}, s.UnloadedModules)
	assert.Empty(t, e.Pending(), "unloading touches no file")

	// A reload of the module keeps it unloaded.
	_, err = e.Reload(ctx, reconcile.Change{Changed: []string{"core/core.iml"}})
	require.NoError(t, err)
	_, ok := e.State().Unloaded.Resolve(graph.ModuleID("core"))
	assert.True(t, ok)

	moved, err = e.SetUnloaded(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, moved)
	again, err := e.Dump(PartitionMain)
	require.NoError(t, err)
	assert.Equal(t, dump, again)
}

func TestEngine_DumpUsesFileNames(t *testing.T) {
	t.Parallel()
	e := newLoaded(t, projectFS())
	out, err := e.Dump(PartitionMain)
	require.NoError(t, err)
	assert.Contains(t, out, ".idea/libraries/gson.xml")
	assert.NotContains(t, out, ".idea/libraries#")

	_, err = e.Dump("elsewhere")
	assert.Error(t, err)
}

func TestEngine_Spans(t *testing.T) {
	t.Parallel()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	mem := projectFS()
	e := newLoaded(t, mem, WithTracer(tp.Tracer("test")))
	mem.AddFile("core/core.iml", coreImlWithTests)
	_, err := e.Reload(context.Background(), reconcile.Change{Changed: []string{"core/core.iml"}})
	require.NoError(t, err)
	_, err = e.SaveAll(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"modelsync.load", "modelsync.reload", "modelsync.save"}, names)
	assert.Contains(t, sr.Ended()[0].Attributes(), attribute.Bool("modelsync.cache_hit", false))
}

func TestEngine_CacheRestoresPartitions(t *testing.T) {
	t.Parallel()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())
	path := filepath.Join(t.TempDir(), "cache", "model.db")
	mem := projectFS()
	ctx := context.Background()

	first := newLoaded(t, mem, WithCache(path))
	want, err := first.Dump(PartitionMain)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newLoaded(t, mem, WithCache(path), WithTracer(tp.Tracer("test")))
	got, err := second.Dump(PartitionMain)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Contains(t, sr.Ended()[0].Attributes(), attribute.Bool("modelsync.cache_hit", true))
	assert.True(t, second.CheckConsistency().OK(), "%v", second.CheckConsistency().Err())

	// The restored registry serves reloads and saves.
	mem.AddFile("core/core.iml", coreImlWithTests)
	_, err = second.Reload(ctx, reconcile.Change{Changed: []string{"core/core.iml"}})
	require.NoError(t, err)
	reloaded, err := second.Dump(PartitionMain)
	require.NoError(t, err)
	require.NotEqual(t, want, reloaded)
	require.NoError(t, second.Close())

	// The reload refreshed the cache, so a third engine sees the edit.
	third := newLoaded(t, mem, WithCache(path), WithTracer(tp.Tracer("test")))
	out, err := third.Dump(PartitionMain)
	require.NoError(t, err)
	assert.Equal(t, reloaded, out)
	assert.Contains(t, sr.Ended()[len(sr.Ended())-1].Attributes(), attribute.Bool("modelsync.cache_hit", true))
}

func TestEngine_CacheMissOnPredicateChange(t *testing.T) {
	t.Parallel()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())
	path := filepath.Join(t.TempDir(), "model.db")
	mem := projectFS()

	first := newLoaded(t, mem, WithCache(path))
	require.NoError(t, first.Close())

	second := newLoaded(t, mem, WithCache(path), WithTracer(tp.Tracer("test")), WithUnloaded(rules.Static("core")))
	assert.Contains(t, sr.Ended()[0].Attributes(), attribute.Bool("modelsync.cache_hit", false))
	assert.Equal(t, []string{"core"}, second.Summary().UnloadedModules)
}

func TestEngine_ReportsMalformedContent(t *testing.T) {
	t.Parallel()
	mem := projectFS()
	mem.AddFile(".idea/libraries/broken.xml", `<component name="libraryTable"><library`)

	var mu sync.Mutex
	var files []string
	e := newLoaded(t, mem, WithErrorReporter(serializer.ReporterFunc(func(_, file string) {
		mu.Lock()
		defer mu.Unlock()
		files = append(files, file)
	})))
	assert.Equal(t, []string{"app", "core"}, e.Summary().Modules)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, files, ".idea/libraries/broken.xml")
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse([]byte("unloaded_modules: [core]\ncache: .modelsync/cache.db\n"))
	require.NoError(t, err)
	opts, err := OptionsFromConfig(t.TempDir(), cfg)
	require.NoError(t, err)

	e := newLoaded(t, projectFS(), opts...)
	assert.Equal(t, []string{"core"}, e.Summary().UnloadedModules)

	cfg.UnloadedRule = "name =="
	_, err = OptionsFromConfig("/p", cfg)
	assert.Error(t, err)
}

// gatedFS blocks reads until the gate is closed.
type gatedFS struct {
	filestore.FS
	gate chan struct{}
}

func (g *gatedFS) ReadFile(name string) ([]byte, error) {
	<-g.gate
	return g.FS.ReadFile(name)
}

func TestGlobal_LoadDeferredWaitsForProjectLoad(t *testing.T) {
	t.Parallel()
	s := scheduler.New()
	gate := make(chan struct{})
	project, err := New("/project", WithFS(&gatedFS{FS: projectFS(), gate: gate}), WithScheduler(s))
	require.NoError(t, err)
	defer project.Close()

	sharedFS := filestore.NewMemFS()
	sharedFS.AddFile("jdk.table.xml", jdkTableXML)
	shared, err := NewGlobal("/shared", WithFS(sharedFS), WithScheduler(s))
	require.NoError(t, err)
	defer shared.Close()

	ctx := context.Background()
	projectDone := make(chan error, 1)
	go func() { projectDone <- project.Load(ctx) }()
	require.Eventually(t, func() bool { return s.Pending() == 1 }, 5*time.Second, time.Millisecond)

	sharedDone := make(chan error, 1)
	go func() { sharedDone <- shared.LoadDeferred(ctx, 10*time.Millisecond) }()

	select {
	case <-sharedDone:
		t.Fatal("global load ran while a project load was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-projectDone)
	require.NoError(t, <-sharedDone)

	sdk, ok := shared.State().Main.Resolve(graph.SDKID("17", "JavaSDK"))
	require.True(t, ok)
	assert.Equal(t, "/usr/lib/jvm/java-17", sdk.Data.(graph.SDKData).HomePath)
	assert.Equal(t, []string{"app", "core"}, project.Summary().Modules)
}

func TestGlobal_Summary(t *testing.T) {
	t.Parallel()
	mem := filestore.NewMemFS()
	mem.AddFile("jdk.table.xml", jdkTableXML)
	e, err := NewGlobal("/shared", WithFS(mem))
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.LoadDeferred(context.Background(), 0))

	s := e.Summary()
	assert.True(t, s.Global)
	assert.Equal(t, 1, s.Counts["sdk"])
	assert.True(t, strings.HasPrefix(s.Root, "/shared"))
}
