// Package workflow implements the chat orchestration graph: a typed state
// machine that routes a user message through specialized model-backed agents
// based on classified intent, with explicit reducer semantics and a per-run
// path trace.
package workflow

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"shopchat/graph"
	"shopchat/log"
	"shopchat/memstore"
	"shopchat/store"
	"shopchat/workflow/prompts"
)

// Node names, also the routing labels of the conditional edges.
const (
	NodeIntentRecognizer   = "intent_recognizer"
	NodeGeneralAgent       = "general_agent"
	NodeOtherAgent         = "other_agent"
	NodeConditionOrganizer = "condition_organizer"
	NodeNewQueryAgent      = "new_query_agent"
	NodeAdjustFilterAgent  = "adjust_filter_agent"
)

// Options configures a Workflow. Model is required; everything else has a
// working default.
type Options struct {
	// Model is the language model behind every node.
	Model llms.Model

	// Memory is the long-term audit store. Defaults to an in-process store.
	Memory memstore.Store

	// Checkpoints, when set, receives a state snapshot after every node step.
	Checkpoints store.CheckpointStore

	// Logger defaults to the package-level default logger.
	Logger log.Logger
}

// promptSet holds the system prompts, loaded once at construction.
type promptSet struct {
	intentRecognizer   string
	generalAgent       string
	otherAgent         string
	conditionOrganizer string
	newQueryAgent      string
	adjustFilterAgent  string
}

func loadPrompts() (promptSet, error) {
	var (
		ps  promptSet
		err error
	)
	load := func(name string) string {
		if err != nil {
			return ""
		}
		var content string
		content, err = prompts.Content(name)
		return content
	}

	ps.intentRecognizer = load(NodeIntentRecognizer)
	ps.generalAgent = load(NodeGeneralAgent)
	ps.otherAgent = load(NodeOtherAgent)
	ps.conditionOrganizer = load(NodeConditionOrganizer)
	ps.newQueryAgent = load(NodeNewQueryAgent)
	ps.adjustFilterAgent = load(NodeAdjustFilterAgent)
	return ps, err
}

// Workflow is the compiled orchestration graph plus its collaborators. Safe
// for concurrent use: runs share no mutable state beyond the stores, which
// handle their own coordination.
type Workflow struct {
	model       llms.Model
	memory      memstore.Store
	checkpoints store.CheckpointStore
	logger      log.Logger
	classifier  *Classifier
	prompts     promptSet
	runnable    *graph.Runnable[State]
}

// New builds and compiles the workflow graph.
func New(opts Options) (*Workflow, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("workflow: model is required")
	}
	if opts.Memory == nil {
		opts.Memory = memstore.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}

	ps, err := loadPrompts()
	if err != nil {
		return nil, err
	}

	w := &Workflow{
		model:       opts.Model,
		memory:      opts.Memory,
		checkpoints: opts.Checkpoints,
		logger:      opts.Logger,
		classifier:  NewClassifier(opts.Model, ps.intentRecognizer),
		prompts:     ps,
	}

	g := graph.NewStateGraph[State]()
	g.SetSchema(Schema{})
	g.SetLogger(w.logger)

	g.AddNode(NodeIntentRecognizer, "classify intent and pick a route", w.intentRecognizer)
	g.AddNode(NodeGeneralAgent, "answer conversational messages", w.generalAgent)
	g.AddNode(NodeOtherAgent, "handle out-of-scope messages", w.otherAgent)
	g.AddNode(NodeConditionOrganizer, "maintain structured search conditions", w.conditionOrganizer)
	g.AddNode(NodeNewQueryAgent, "respond to a new product search", w.newQueryAgent)
	g.AddNode(NodeAdjustFilterAgent, "respond to a search refinement", w.adjustFilterAgent)

	g.SetEntryPoint(NodeIntentRecognizer)
	g.AddConditionalEdge(NodeIntentRecognizer, routeOnNext)
	g.AddConditionalEdge(NodeConditionOrganizer, routeOnNext)
	g.AddEdge(NodeGeneralAgent, graph.END)
	g.AddEdge(NodeOtherAgent, graph.END)
	g.AddEdge(NodeNewQueryAgent, graph.END)
	g.AddEdge(NodeAdjustFilterAgent, graph.END)

	w.runnable, err = g.Compile()
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return w, nil
}

// routeOnNext reads the routing label the source node stored in the state.
func routeOnNext(ctx context.Context, state State) string {
	return state.Next
}

// RunResult is what a completed run hands back to the caller.
type RunResult struct {
	// Response is the content of the last assistant message produced
	// during the run.
	Response string

	// Path is the ordered list of node names visited.
	Path []string

	// Intent is the classified message type.
	Intent Intent

	// FinalAgent is the terminal node reached.
	FinalAgent string

	// State is the final folded state, with the trim policy applied.
	State State
}

// Run executes the workflow for one user message. History is the prior
// conversation loaded by the caller; threadID groups the runs of one session
// for checkpointing and may be empty for a standalone run.
func (w *Workflow) Run(ctx context.Context, history []Message, message string, threadID string) (*RunResult, error) {
	initial := State{
		Messages: append(append([]Message(nil), history...), HumanMessage(message)),
	}

	final, trace, err := w.runnable.InvokeWithConfig(ctx, initial, &graph.Config{
		ThreadID:    threadID,
		Checkpoints: w.checkpoints,
	})
	if err != nil {
		return nil, err
	}

	final = TrimMessages(final)

	w.logger.Info("workflow: run %s path %v final %s intent %s",
		trace.RunID, trace.Path, trace.FinalNode, final.MessageType)

	return &RunResult{
		Response:   final.LastAssistantMessage(),
		Path:       trace.Path,
		Intent:     final.MessageType,
		FinalAgent: trace.FinalNode,
		State:      final,
	}, nil
}
