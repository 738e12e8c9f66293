package secrets

import "os"

// EnvSpec declares one named credential sourced from the invoking environment.
type EnvSpec struct {
	Name   string   // credential name steps declare
	Var    string   // environment variable holding the value
	Stages []string // stages the credential is scoped to; empty = all
}

// LookupFunc abstracts environment lookup for tests.
type LookupFunc func(key string) (string, bool)

// FromEnvironment builds a store from the process environment at pipeline
// start. Unset variables are simply not registered: a step requiring one
// fails closed at resolution time rather than at startup, matching the
// per-step failure semantics.
func FromEnvironment(specs []EnvSpec, lookup LookupFunc) (*Store, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	store := NewStore()
	for _, spec := range specs {
		raw, ok := lookup(spec.Var)
		if !ok || raw == "" {
			continue
		}
		scope := GlobalScope()
		if len(spec.Stages) > 0 {
			scope = StageScope(spec.Stages...)
		}
		if err := store.Register(spec.Name, Value(raw), scope); err != nil {
			return nil, err
		}
	}
	return store, nil
}
