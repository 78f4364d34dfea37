package dag

import (
	"fmt"
	"sort"

	flowerrors "github.com/kbukum/flowcore/errors"
	"github.com/kbukum/flowcore/validation"
)

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// DAG declares a pipeline's nodes and dependency edges. Edges are derived
// automatically from each Node's DependsOn list; AddEdge exists for callers
// that prefer to declare edges separately from node construction.
type DAG struct {
	Nodes map[string]*Node
	Edges []Edge
}

// New creates an empty DAG.
func New() *DAG {
	return &DAG{Nodes: make(map[string]*Node)}
}

// AddNode registers a node and materializes edges for its DependsOn list.
// Returns a ValidationError if the node has an empty id, or a node with the
// same id is already present.
func (d *DAG) AddNode(n *Node) error {
	v := validation.New()
	v.Required("node_id", n.ID)
	if appErr := v.Validate(); appErr != nil {
		return &flowerrors.ValidationError{AppError: appErr, Nodes: []string{n.ID}}
	}

	if _, exists := d.Nodes[n.ID]; exists {
		return flowerrors.NewValidationError(flowerrors.ErrCodeDuplicateNode,
			fmt.Sprintf("node %q already registered", n.ID), n.ID)
	}
	d.Nodes[n.ID] = n
	for _, dep := range n.DependsOn {
		d.Edges = append(d.Edges, Edge{From: dep, To: n.ID})
	}
	return nil
}

// AddEdge declares an explicit dependency beyond what a node's DependsOn
// list already expresses (useful when edges are derived from an external
// source rather than the node definition itself).
func (d *DAG) AddEdge(from, to string) {
	d.Edges = append(d.Edges, Edge{From: from, To: to})
}

// adjacency builds the dependents map (from -> [to...]) and in-degree map,
// validating that every edge references a known node.
func (d *DAG) adjacency() (dependents map[string][]string, inDegree map[string]int, err error) {
	inDegree = make(map[string]int, len(d.Nodes))
	dependents = make(map[string][]string)

	for id := range d.Nodes {
		inDegree[id] = 0
	}

	for _, e := range d.Edges {
		if _, ok := d.Nodes[e.From]; !ok {
			return nil, nil, flowerrors.NewValidationError(flowerrors.ErrCodeUnknownNode,
				fmt.Sprintf("edge references unknown node %q", e.From), e.From)
		}
		if _, ok := d.Nodes[e.To]; !ok {
			return nil, nil, flowerrors.NewValidationError(flowerrors.ErrCodeUnknownNode,
				fmt.Sprintf("edge references unknown node %q", e.To), e.To)
		}
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	return dependents, inDegree, nil
}

// TopologicalLayers groups nodes by dependency depth using Kahn's algorithm.
// Nodes within the same layer share no dependency relationship and may run
// concurrently. Returns a ValidationError (ErrCodeCycleDetected) if the
// graph contains a cycle, naming every node that could not be ordered.
func (d *DAG) TopologicalLayers() ([][]string, error) {
	dependents, inDegree, err := d.adjacency()
	if err != nil {
		return nil, err
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var layers [][]string
	visited := 0

	for len(queue) > 0 {
		layers = append(layers, queue)
		visited += len(queue)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	if visited != len(d.Nodes) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, flowerrors.NewValidationError(flowerrors.ErrCodeCycleDetected,
			fmt.Sprintf("cycle detected, %d of %d nodes could not be ordered", len(stuck), len(d.Nodes)), stuck...)
	}

	return layers, nil
}

// Validate checks the graph is well-formed: every edge references a known
// node and the graph contains no cycle. Duplicate node ids are rejected by
// AddNode, not here.
func (d *DAG) Validate() error {
	if _, _, err := d.adjacency(); err != nil {
		return err
	}
	_, err := d.TopologicalLayers()
	return err
}

// Predecessors returns the ids of nodes that id directly depends on.
func (d *DAG) Predecessors(id string) []string {
	var preds []string
	for _, e := range d.Edges {
		if e.To == id {
			preds = append(preds, e.From)
		}
	}
	sort.Strings(preds)
	return preds
}

// Successors returns the ids of nodes that directly depend on id.
func (d *DAG) Successors(id string) []string {
	var succs []string
	for _, e := range d.Edges {
		if e.From == id {
			succs = append(succs, e.To)
		}
	}
	sort.Strings(succs)
	return succs
}

// Roots returns the ids of nodes with no dependencies, i.e. the nodes the
// scheduler can start immediately.
func (d *DAG) Roots() []string {
	hasDeps := make(map[string]bool, len(d.Nodes))
	for _, e := range d.Edges {
		hasDeps[e.To] = true
	}
	var roots []string
	for id := range d.Nodes {
		if !hasDeps[id] {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}
