package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shopchat/log"
	"shopchat/store"
)

// StateGraph is a directed graph of typed nodes with one entry point and the
// END sink. Edges are either fixed or conditional; a conditional edge reads
// the state produced by its source node and returns the successor's name.
//
// Execution is strictly sequential: exactly one node is active at a time and
// its result is folded into the running state before routing is decided.
type StateGraph[S any] struct {
	nodes            map[string]Node[S]
	edges            []Edge
	conditionalEdges map[string]func(ctx context.Context, state S) string
	entryPoint       string
	schema           StateSchema[S]
	logger           log.Logger
}

// NewStateGraph creates a new instance of StateGraph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
		logger:           log.GetDefaultLogger(),
	}
}

// AddNode adds a node to the graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a fixed edge between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds an edge whose target is determined at run time from
// the updated state.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetSchema sets the state schema used to fold node results into the state.
func (g *StateGraph[S]) SetSchema(schema StateSchema[S]) {
	g.schema = schema
}

// SetLogger sets the logger used during execution.
func (g *StateGraph[S]) SetLogger(logger log.Logger) {
	g.logger = logger
}

// Runnable is a compiled state graph that can be invoked.
type Runnable[S any] struct {
	graph *StateGraph[S]
}

// Compile validates the graph and returns a Runnable.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if e.To == END {
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
	}
	return &Runnable[S]{graph: g}, nil
}

// Config carries per-invocation settings.
type Config struct {
	// RunID identifies this invocation. Generated when empty.
	RunID string

	// ThreadID groups the runs of one conversation for checkpointing.
	// Generated when empty.
	ThreadID string

	// Checkpoints, when set, receives a state snapshot after every node step.
	// Snapshot failures are logged and never fail the run.
	Checkpoints store.CheckpointStore
}

// Trace is the audit trail of one invocation: the nodes visited in order and
// the terminal node reached. Created fresh per invocation and handed back to
// the caller; the executor keeps no reference to it.
type Trace struct {
	RunID     string
	ThreadID  string
	Path      []string
	FinalNode string
}

// Invoke executes the compiled graph with the given input state.
func (r *Runnable[S]) Invoke(ctx context.Context, initialState S) (S, *Trace, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled graph with the given input state and config.
//
// Each iteration invokes the current node, folds the partial result into the
// running state via the schema, then consults the transition table: a
// conditional edge reads the updated state, a fixed edge is followed as-is.
// The loop stops at END. A conditional label naming no node fails the run
// with ErrUndefinedRoute; a node failure is wrapped in NodeError.
func (r *Runnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, *Trace, error) {
	g := r.graph

	state := initialState
	if g.schema != nil {
		var err error
		state, err = g.schema.Update(g.schema.Init(), initialState)
		if err != nil {
			var zero S
			return zero, nil, fmt.Errorf("failed to initialize state with schema: %w", err)
		}
	}

	trace := &Trace{}
	if config != nil {
		trace.RunID = config.RunID
		trace.ThreadID = config.ThreadID
	}
	if trace.RunID == "" {
		trace.RunID = uuid.New().String()
	}
	if trace.ThreadID == "" {
		trace.ThreadID = uuid.New().String()
	}

	current := g.entryPoint
	step := 0

	for current != END {
		node, ok := g.nodes[current]
		if !ok {
			var zero S
			return zero, trace, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		g.logger.Debug("graph: run %s step %d node %s", trace.RunID, step+1, current)

		result, err := node.Function(ctx, state)
		if err != nil {
			var zero S
			return zero, trace, &NodeError{Node: current, Err: err}
		}

		state, err = r.fold(state, result)
		if err != nil {
			var zero S
			return zero, trace, fmt.Errorf("schema update after node %s: %w", current, err)
		}

		step++
		trace.Path = append(trace.Path, current)
		trace.FinalNode = current

		r.checkpoint(ctx, config, trace, current, step, state)

		next, err := r.nextNode(ctx, current, state)
		if err != nil {
			var zero S
			return zero, trace, err
		}
		current = next
	}

	return state, trace, nil
}

// fold applies the schema to merge a node result into the running state.
func (r *Runnable[S]) fold(current, result S) (S, error) {
	if r.graph.schema == nil {
		return result, nil
	}
	return r.graph.schema.Update(current, result)
}

// nextNode resolves the successor of "from" using the updated state.
func (r *Runnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	g := r.graph

	if condition, ok := g.conditionalEdges[from]; ok {
		label := condition(ctx, state)
		if label == END {
			return END, nil
		}
		if label == "" {
			return "", fmt.Errorf("%w: node %s produced no routing label", ErrUndefinedRoute, from)
		}
		if _, ok := g.nodes[label]; !ok {
			return "", fmt.Errorf("%w: node %s produced label %q", ErrUndefinedRoute, from, label)
		}
		return label, nil
	}

	for _, edge := range g.edges {
		if edge.From == from {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}

// checkpoint snapshots the state after a completed step. Best-effort: a store
// failure is logged and does not affect the run.
func (r *Runnable[S]) checkpoint(ctx context.Context, config *Config, trace *Trace, nodeName string, step int, state S) {
	if config == nil || config.Checkpoints == nil {
		return
	}
	cp := &store.Checkpoint{
		ID:        uuid.New().String(),
		ThreadID:  trace.ThreadID,
		RunID:     trace.RunID,
		NodeName:  nodeName,
		State:     state,
		Timestamp: time.Now().UTC(),
		Step:      step,
	}
	if err := config.Checkpoints.Save(ctx, cp); err != nil {
		r.graph.logger.Warn("graph: checkpoint save failed at node %s: %v", nodeName, err)
	}
}
