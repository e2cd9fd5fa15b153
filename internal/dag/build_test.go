package dag

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/conveyor/internal/config"
)

// parseExpr is a test helper turning source text into an hcl.Expression.
func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "parsing %q: %s", src, diags.Error())
	return expr
}

func simpleJob(name string, needs ...string) *config.Job {
	return &config.Job{
		Name:  name,
		Needs: needs,
		Steps: []*config.Step{{ID: "noop", Uses: "noop"}},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("links explicit needs edges", func(t *testing.T) {
		t.Parallel()
		p := &config.Pipeline{
			Name: "p",
			Jobs: []*config.Job{
				simpleJob("a"),
				simpleJob("b", "a"),
				simpleJob("c", "a", "b"),
			},
		}

		graph, err := Build(ctx, p)
		require.NoError(t, err)
		require.Len(t, graph.Nodes, 3)

		assert.Contains(t, graph.Nodes["b"].Deps, "a")
		assert.Contains(t, graph.Nodes["a"].Dependents, "b")
		assert.Contains(t, graph.Nodes["c"].Deps, "a")
		assert.Contains(t, graph.Nodes["c"].Deps, "b")
		assert.Equal(t, int32(0), graph.Nodes["a"].depCount.Load())
		assert.Equal(t, int32(1), graph.Nodes["b"].depCount.Load())
		assert.Equal(t, int32(2), graph.Nodes["c"].depCount.Load())
	})

	t.Run("rejects undefined dependency", func(t *testing.T) {
		t.Parallel()
		p := &config.Pipeline{Name: "p", Jobs: []*config.Job{simpleJob("a", "ghost")}}

		_, err := Build(ctx, p)
		assert.ErrorContains(t, err, "depends on undefined job 'ghost'")
	})

	t.Run("rejects self-dependency", func(t *testing.T) {
		t.Parallel()
		p := &config.Pipeline{Name: "p", Jobs: []*config.Job{simpleJob("a", "a")}}

		_, err := Build(ctx, p)
		assert.ErrorContains(t, err, "cannot depend on itself")
	})

	t.Run("rejects cycles", func(t *testing.T) {
		t.Parallel()
		p := &config.Pipeline{
			Name: "p",
			Jobs: []*config.Job{
				simpleJob("a", "c"),
				simpleJob("b", "a"),
				simpleJob("c", "b"),
			},
		}

		_, err := Build(ctx, p)
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("rejects needs reference outside declared set", func(t *testing.T) {
		t.Parallel()
		undeclared := simpleJob("b", "a")
		undeclared.When = parseExpr(t, `needs.other.outputs.ok == "true"`)
		p := &config.Pipeline{
			Name: "p",
			Jobs: []*config.Job{simpleJob("a"), simpleJob("other"), undeclared},
		}

		_, err := Build(ctx, p)
		assert.ErrorContains(t, err, "does not declare 'other' in its needs")
	})

	t.Run("accepts needs reference to declared dependency", func(t *testing.T) {
		t.Parallel()
		declared := simpleJob("b", "a")
		declared.When = parseExpr(t, `needs.a.outputs.ok == "true"`)
		p := &config.Pipeline{Name: "p", Jobs: []*config.Job{simpleJob("a"), declared}}

		_, err := Build(ctx, p)
		assert.NoError(t, err)
	})
}
