package reconcile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/modelsync/internal/graph"
)

func TestCheckConsistency_CleanLoad(t *testing.T) {
	t.Parallel()
	f := newFixture(t, projectLayout, projectFiles())
	st := f.load(t)
	entries := f.r.Registry().Index().Entries()
	files := f.r.Registry().Files()

	first := f.r.CheckConsistency(st)
	second := f.r.CheckConsistency(st)
	assert.True(t, first.OK(), "%v", first.Err())
	assert.Equal(t, first, second)
	assert.Equal(t, entries, f.r.Registry().Index().Entries(), "index untouched")
	assert.Equal(t, files, f.r.Registry().Files(), "registry untouched")
}

func TestCheckConsistency_Problems(t *testing.T) {
	t.Parallel()
	f := newFixture(t, projectLayout, projectFiles())
	st := f.load(t)

	// A file appears on disk without a reload.
	f.mem.AddFile(".idea/libraries/junit.xml", junitXML)
	// A file ID is registered that nothing owns.
	f.r.Registry().Index().RegisterSource(".idea/artifacts/stale.xml", 99)
	// An entity claims a directory file that was never registered.
	b := st.Main.Open()
	_, err := b.Add(0, graph.FileInDirectory(".idea/libraries", 42), graph.LibraryData{Name: "ghost", Table: graph.ProjectTable})
	require.NoError(t, err)
	st.Main = b.Freeze()

	report := f.r.CheckConsistency(st)
	require.False(t, report.OK())
	kinds := make(map[ProblemKind]int)
	for _, p := range report.Problems {
		kinds[p.Kind]++
	}
	assert.Equal(t, map[ProblemKind]int{UnknownFile: 1, StaleFileID: 1, UnregisteredSource: 1}, kinds)
	assert.Equal(t, report, f.r.CheckConsistency(st))
	assert.True(t, strings.Contains(report.Err().Error(), "stale.xml"))
}

func TestVerify(t *testing.T) {
	t.Parallel()
	files := projectFiles()
	files["app/app.iml"] = strings.Replace(appIml,
		`<orderEntry type="library" name="gson" level="project" />`,
		`<orderEntry type="library" level="project" name="gson" />`, 1)
	f := newFixture(t, projectLayout, files)
	st := f.load(t)
	before := f.mem.Files()

	mismatches, err := f.r.Verify(st, nil)
	require.NoError(t, err)
	assert.Equal(t, []Mismatch{{File: "app/app.iml", Kind: "changed"}}, mismatches)

	mismatches, err = f.r.Verify(st, []string{"NewModuleRootManager"})
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	assert.Equal(t, before, f.mem.Files(), "verify writes nothing")
	data, _ := f.mem.ReadFile("app/app.iml")
	assert.Equal(t, files["app/app.iml"], string(data))
}

func TestVerify_ReportsPendingChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t, projectLayout, projectFiles())
	st := f.load(t)

	b := st.Main.Open()
	lib, _ := b.Resolve(graph.LibraryID(graph.ProjectTable, "gson"))
	_, err := b.Remove(lib.ID)
	require.NoError(t, err)
	src, err := f.r.AllocateSource(".idea/artifacts", "docs")
	require.NoError(t, err)
	_, err = b.Add(0, src, graph.ArtifactData{Name: "docs", Type: "zip"})
	require.NoError(t, err)
	st.Main = b.Freeze()

	mismatches, err := f.r.Verify(st, nil)
	require.NoError(t, err)
	assert.Equal(t, []Mismatch{
		{File: ".idea/artifacts/docs.xml", Kind: "created"},
		{File: ".idea/libraries/gson.xml", Kind: "deleted"},
	}, mismatches)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, projectLayout, projectFiles())
	a, err := f.r.Fingerprint()
	require.NoError(t, err)
	b, err := f.r.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	f.mem.AddFile("core/core.iml", coreImlWithTests)
	c, err := f.r.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// Files outside the scope do not matter.
	f.mem.AddFile("README.md", "hello")
	d, err := f.r.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, c, d)

	_, _, err = f.r.Load(context.Background())
	require.NoError(t, err)
}
