package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/modelsync/internal/graph"
)

func project(t *testing.T) *testEnv {
	return newTestEnv(t, map[string]string{
		".idea/modules.xml":            modulesXML,
		"app/app.iml":                  appIml,
		"core/core.iml":                coreIml,
		".idea/libraries/gson.xml":     gsonXML,
		".idea/libraries/junit.xml":    junitXML,
		".idea/artifacts/app_jar.xml":  appJarXML,
		".idea/artifacts/notes.txt":    "ignored",
		".idea/external/modules/x.xml": `<module version="4" />`,
	})
}

func TestRegistry_ReconcileInstantiates(t *testing.T) {
	t.Parallel()
	env := project(t)
	reg := NewRegistry(layout, env.Index)

	delta := reg.Reconcile(env.Env, nil)
	assert.Len(t, delta.Added, 5)
	assert.Empty(t, delta.Retired)
	assert.Equal(t, []string{
		".idea/artifacts/app_jar.xml",
		".idea/libraries/gson.xml",
		".idea/libraries/junit.xml",
		".idea/modules.xml",
		"app/app.iml",
		"core/core.iml",
	}, reg.Files(), "external storage is off")

	s, ok := reg.Lookup("app/app.iml")
	require.True(t, ok)
	mod, ok := s.Module()
	assert.True(t, ok)
	assert.Equal(t, "app", mod)

	assert.True(t, reg.Reconcile(env.Env, nil).Empty(), "reconcile is idempotent")
}

func TestRegistry_ReconcileFollowsDisk(t *testing.T) {
	t.Parallel()
	env := project(t)
	reg := NewRegistry(layout, env.Index)
	reg.Reconcile(env.Env, nil)
	gsonSrc, ok := env.Index.Lookup(".idea/libraries/gson.xml")
	require.True(t, ok)

	env.mem.AddFile(".idea/modules.xml", `<project version="4">
  <component name="ProjectModuleManager">
    <modules>
      <module filepath="$PROJECT_DIR$/app/app.iml" />
      <module filepath="$PROJECT_DIR$/lib/lib.iml" />
    </modules>
  </component>
</project>`)
	require.NoError(t, env.mem.Remove(".idea/libraries/gson.xml"))
	env.mem.AddFile(".idea/libraries/guava.xml", gsonXML)
	env.Store.Reset()

	delta := reg.Reconcile(env.Env, nil)
	var added, retired []string
	for _, s := range delta.Added {
		added = append(added, s.File())
	}
	for _, s := range delta.Retired {
		retired = append(retired, s.File())
	}
	assert.ElementsMatch(t, []string{"lib/lib.iml", ".idea/libraries/guava.xml"}, added)
	// Retired directory files lose their provenance, so only the module
	// keeps a path.
	assert.ElementsMatch(t, []string{"core/core.iml", ""}, retired)

	_, err := env.Index.ActualURL(gsonSrc)
	assert.Error(t, err)
}

func TestRegistry_KeepRetainsLiveSerializers(t *testing.T) {
	t.Parallel()
	env := project(t)
	reg := NewRegistry(layout, env.Index)
	reg.Reconcile(env.Env, nil)

	require.NoError(t, env.mem.Remove(".idea/libraries/junit.xml"))
	env.Store.Reset()
	delta := reg.Reconcile(env.Env, func(s Serializer) bool {
		return s.File() == ".idea/libraries/junit.xml"
	})
	assert.True(t, delta.Empty())
	_, ok := reg.Lookup(".idea/libraries/junit.xml")
	assert.True(t, ok)
}

func TestRegistry_ExternalStorage(t *testing.T) {
	t.Parallel()
	env := project(t)
	ext := Layout{ConfigDir: ".idea", ExternalStorage: true}
	reg := NewRegistry(ext, env.Index)
	reg.Reconcile(env.Env, nil)

	s, ok := reg.Lookup(".idea/external/modules/x.xml")
	require.True(t, ok)
	assert.Equal(t, SingleFile, s.Shape())
	assert.True(t, reg.Relevant(".idea/external/libraries/new.xml"))
	assert.True(t, reg.Relevant(".idea/external/modules/y.xml"))
	assert.False(t, NewRegistry(layout, env.Index).Relevant(".idea/external/modules/y.xml"))
}

func TestRegistry_EnsureAndOwner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	reg := NewRegistry(layout, env.Index)

	s, ok := reg.Ensure(graph.ExactFile("new/new.iml"))
	require.True(t, ok)
	assert.Equal(t, "new/new.iml", s.File())
	again, ok := reg.Owner(graph.Imported("Maven", graph.ExactFile("new/new.iml")))
	require.True(t, ok)
	assert.Same(t, s, again)

	_, ok = reg.Ensure(graph.FileInDirectory(layout.LibrariesDir(), 42))
	assert.False(t, ok, "unregistered directory source")
	_, ok = reg.Ensure(graph.ExactFile("README.md"))
	assert.False(t, ok)

	src := env.Index.SourceFor(".idea/artifacts/dist.xml")
	s, ok = reg.Ensure(src)
	require.True(t, ok)
	assert.Equal(t, DirectoryFile, s.Shape())

	reg.Retire(s)
	_, ok = reg.Owner(src)
	assert.False(t, ok)
	assert.False(t, reg.Relevant("docs/readme.xml"))
	assert.True(t, reg.Relevant(".idea/artifacts/other.xml"))
}
