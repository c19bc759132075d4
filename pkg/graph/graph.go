// Package graph builds and validates the directed acyclic graph derived from
// a workflow's nodes and connections. Validation happens entirely at load
// time: a workflow whose graph contains a cycle or dangling references is
// rejected before any node dispatch.
package graph

import (
	"errors"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

var (
	// ErrDuplicateNodeID indicates two nodes share the same ID.
	ErrDuplicateNodeID = errors.New("duplicate node id")

	// ErrUnknownNode indicates a connection references a node that does not exist.
	ErrUnknownNode = errors.New("connection references unknown node")

	// ErrCycle indicates the node/connection set is not a DAG.
	ErrCycle = errors.New("workflow graph contains a cycle")
)

// Edge is one directed connection annotated with the output key it reads
// from and the optional conversion expression applied in flight.
type Edge struct {
	From       string
	To         string
	OutputKey  string
	Conversion string
}

// WorkflowGraph is a read-only view over a workflow's nodes and connections:
// adjacency and reverse-adjacency lists plus a precomputed topological order.
type WorkflowGraph struct {
	nodes map[string]*models.WorkflowNode
	ids   []string // insertion order, for deterministic traversal
	adj   map[string][]Edge
	rev   map[string][]Edge
	order []string
	roots []string
}

// Build constructs and validates a WorkflowGraph. It rejects duplicate node
// IDs, connections referencing unknown nodes, and any cycle (detected with
// Kahn's algorithm while computing the topological order).
func Build(nodes []*models.WorkflowNode, connections []*models.Connection) (*WorkflowGraph, error) {
	g := &WorkflowGraph{
		nodes: make(map[string]*models.WorkflowNode, len(nodes)),
		ids:   make([]string, 0, len(nodes)),
		adj:   make(map[string][]Edge, len(nodes)),
		rev:   make(map[string][]Edge, len(nodes)),
	}

	for _, node := range nodes {
		if _, exists := g.nodes[node.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeID, node.ID)
		}

		g.nodes[node.ID] = node
		g.ids = append(g.ids, node.ID)
	}

	for _, conn := range connections {
		if _, ok := g.nodes[conn.FromNode]; !ok {
			return nil, fmt.Errorf("%w: %s (connection %s)", ErrUnknownNode, conn.FromNode, conn.ID)
		}

		if _, ok := g.nodes[conn.ToNode]; !ok {
			return nil, fmt.Errorf("%w: %s (connection %s)", ErrUnknownNode, conn.ToNode, conn.ID)
		}

		edge := Edge{
			From:       conn.FromNode,
			To:         conn.ToNode,
			OutputKey:  conn.SourceKey(),
			Conversion: conn.Conversion,
		}
		g.adj[conn.FromNode] = append(g.adj[conn.FromNode], edge)
		g.rev[conn.ToNode] = append(g.rev[conn.ToNode], edge)
	}

	if err := g.sort(); err != nil {
		return nil, err
	}

	return g, nil
}

// sort computes the topological order with Kahn's algorithm. If fewer nodes
// come out than went in, the remainder participate in a cycle.
func (g *WorkflowGraph) sort() error {
	inDegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		inDegree[id] = len(g.rev[id])
	}

	queue := make([]string, 0, len(g.ids))

	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	g.roots = append([]string(nil), queue...)
	g.order = make([]string, 0, len(g.ids))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		g.order = append(g.order, id)

		for _, edge := range g.adj[id] {
			inDegree[edge.To]--
			if inDegree[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}

	if len(g.order) < len(g.ids) {
		var stuck []string

		for _, id := range g.ids {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}

		return fmt.Errorf("%w: unresolved nodes %v", ErrCycle, stuck)
	}

	return nil
}

// Node returns the node with the given ID, or nil when absent.
func (g *WorkflowGraph) Node(id string) *models.WorkflowNode {
	return g.nodes[id]
}

// Len returns the number of nodes in the graph.
func (g *WorkflowGraph) Len() int {
	return len(g.ids)
}

// TopoOrder returns a copy of the topological order: every node appears
// after all of its predecessors.
func (g *WorkflowGraph) TopoOrder() []string {
	return append([]string(nil), g.order...)
}

// Roots returns the zero-in-degree nodes, the initial ready set.
func (g *WorkflowGraph) Roots() []string {
	return append([]string(nil), g.roots...)
}

// Successors returns the outgoing edges of a node.
func (g *WorkflowGraph) Successors(id string) []Edge {
	return g.adj[id]
}

// Predecessors returns the IDs of nodes with an edge into id.
func (g *WorkflowGraph) Predecessors(id string) []string {
	edges := g.rev[id]
	preds := make([]string, 0, len(edges))

	for _, edge := range edges {
		preds = append(preds, edge.From)
	}

	return preds
}

// InDegree returns the number of incoming edges of a node.
func (g *WorkflowGraph) InDegree(id string) int {
	return len(g.rev[id])
}
