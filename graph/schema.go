package graph

// StateSchema defines the structure and update logic for the graph state.
// Update folds a node's partial result into the running state; every field
// the node did not set must deterministically keep its last known value, so
// that pass-through never depends on a node remembering to copy fields.
type StateSchema[S any] interface {
	// Init returns the initial state.
	Init() S

	// Update merges the new partial state into the current state.
	Update(current, new S) (S, error)
}

// SchemaFuncs adapts plain functions to a StateSchema.
type SchemaFuncs[S any] struct {
	InitFunc   func() S
	UpdateFunc func(current, new S) (S, error)
}

// Init returns the initial state.
func (s SchemaFuncs[S]) Init() S {
	return s.InitFunc()
}

// Update merges the new partial state into the current state.
func (s SchemaFuncs[S]) Update(current, new S) (S, error) {
	return s.UpdateFunc(current, new)
}
