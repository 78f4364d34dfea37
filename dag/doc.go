// Package dag declares the directed acyclic graph that a pipeline run
// executes: nodes, their dependency edges, and the validation and topology
// queries the scheduler needs (layering, predecessors, successors, cycle
// detection). It holds no execution logic — running a node is the
// engine package's job, driven through the step.StepExecutor each Node
// carries.
package dag
