package graph

import (
	"context"
	"errors"
	"fmt"
)

// START is the sentinel name for the implicit entry state of the graph.
const START = "START"

// END is the sentinel name for the terminal sink of the graph.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrUndefinedRoute is returned when a conditional edge produces a label
	// that matches no node. It identifies an orchestration failure, as opposed
	// to a node (model call) failure which is reported as a NodeError.
	ErrUndefinedRoute = errors.New("undefined route")
)

// NodeError wraps a failure raised inside a node function, so callers can
// tell model/node failures apart from routing failures.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("error in node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Node represents a single step in the graph.
type Node[S any] struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function computes a partial state update from the current state.
	Function func(ctx context.Context, state S) (S, error)
}

// Edge represents a fixed edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}
