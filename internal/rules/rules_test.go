package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicate_StaticNames(t *testing.T) {
	t.Parallel()
	p := Static("core", "docs")
	ctx := context.Background()

	v, err := p.Unloaded(ctx, "core")
	require.NoError(t, err)
	assert.True(t, v)
	v, err = p.Unloaded(ctx, "app")
	require.NoError(t, err)
	assert.False(t, v)
	assert.Equal(t, []string{"core", "docs"}, p.Names())
}

func TestPredicate_Expression(t *testing.T) {
	t.Parallel()
	p, err := New(nil, `strings.has_prefix(name, "legacy-") || name == "samples"`)
	require.NoError(t, err)
	fn := p.Func(context.Background())

	assert.True(t, fn("legacy-ui"))
	assert.True(t, fn("samples"))
	assert.False(t, fn("app"))
	// Cached answers agree.
	assert.True(t, fn("legacy-ui"))
}

func TestPredicate_ExpressionAndNames(t *testing.T) {
	t.Parallel()
	p, err := New([]string{"core"}, `name == "web"`)
	require.NoError(t, err)
	fn := p.Func(context.Background())
	assert.True(t, fn("core"))
	assert.True(t, fn("web"))
	assert.False(t, fn("app"))
}

func TestPredicate_InvalidExpression(t *testing.T) {
	t.Parallel()
	_, err := New(nil, `name ==`)
	assert.Error(t, err)
}

func TestPredicate_With(t *testing.T) {
	t.Parallel()
	p, err := New([]string{"core"}, `name == "web"`)
	require.NoError(t, err)
	q := p.With([]string{"app"})
	fn := q.Func(context.Background())

	assert.False(t, fn("core"))
	assert.True(t, fn("app"))
	assert.True(t, fn("web"))
	assert.Equal(t, p.Expression(), q.Expression())
}
