package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/models"
)

func node(id string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:       id,
		Type:     "log",
		Category: models.CategoryTypeAction,
		Name:     id,
		Enabled:  true,
	}
}

func conn(from, to string) *models.Connection {
	return &models.Connection{
		ID:       from + "->" + to,
		FromNode: from,
		ToNode:   to,
	}
}

func TestBuild_LinearGraph(t *testing.T) {
	g, err := Build(
		[]*models.WorkflowNode{node("a"), node("b"), node("c")},
		[]*models.Connection{conn("a", "b"), conn("b", "c")},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.TopoOrder())
	assert.Equal(t, []string{"a"}, g.Roots())
	assert.Equal(t, 0, g.InDegree("a"))
	assert.Equal(t, 1, g.InDegree("b"))
	assert.Equal(t, []string{"b"}, g.Predecessors("c"))
}

func TestBuild_TopoOrderRespectsAllEdges(t *testing.T) {
	// Diamond plus a tail: a->b, a->c, b->d, c->d, d->e.
	g, err := Build(
		[]*models.WorkflowNode{node("a"), node("b"), node("c"), node("d"), node("e")},
		[]*models.Connection{
			conn("a", "b"), conn("a", "c"),
			conn("b", "d"), conn("c", "d"),
			conn("d", "e"),
		},
	)
	require.NoError(t, err)

	position := make(map[string]int)
	for i, id := range g.TopoOrder() {
		position[id] = i
	}

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		for _, edge := range g.Successors(id) {
			assert.Less(t, position[edge.From], position[edge.To],
				"edge %s->%s violates topological order", edge.From, edge.To)
		}
	}
}

func TestBuild_RejectsDuplicateNodeIDs(t *testing.T) {
	_, err := Build([]*models.WorkflowNode{node("a"), node("a")}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNodeID)
}

func TestBuild_RejectsUnknownNodeReference(t *testing.T) {
	_, err := Build(
		[]*models.WorkflowNode{node("a")},
		[]*models.Connection{conn("a", "ghost")},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestBuild_RejectsCycle(t *testing.T) {
	_, err := Build(
		[]*models.WorkflowNode{node("a"), node("b"), node("c")},
		[]*models.Connection{conn("a", "b"), conn("b", "c"), conn("c", "a")},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestBuild_RejectsSelfLoop(t *testing.T) {
	_, err := Build(
		[]*models.WorkflowNode{node("a")},
		[]*models.Connection{conn("a", "a")},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestBuild_RejectsCycleBehindTrigger(t *testing.T) {
	// A valid root exists, but b<->c still form a cycle reachable from it.
	_, err := Build(
		[]*models.WorkflowNode{node("a"), node("b"), node("c")},
		[]*models.Connection{conn("a", "b"), conn("b", "c"), conn("c", "b")},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestBuild_EdgeAnnotations(t *testing.T) {
	c := conn("a", "b")
	c.OutputKey = "errors"
	c.Conversion = `{"wrapped": input}`

	g, err := Build([]*models.WorkflowNode{node("a"), node("b")}, []*models.Connection{c})
	require.NoError(t, err)

	edges := g.Successors("a")
	require.Len(t, edges, 1)
	assert.Equal(t, "errors", edges[0].OutputKey)
	assert.Equal(t, `{"wrapped": input}`, edges[0].Conversion)
}

func TestBuild_DefaultOutputKey(t *testing.T) {
	g, err := Build(
		[]*models.WorkflowNode{node("a"), node("b")},
		[]*models.Connection{conn("a", "b")},
	)
	require.NoError(t, err)

	assert.Equal(t, models.DefaultOutputKey, g.Successors("a")[0].OutputKey)
}

func TestBuild_DisconnectedNodesAreRoots(t *testing.T) {
	g, err := Build(
		[]*models.WorkflowNode{node("a"), node("b"), node("island")},
		[]*models.Connection{conn("a", "b")},
	)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "island"}, g.Roots())
	assert.Equal(t, 3, g.Len())
}
