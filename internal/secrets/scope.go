package secrets

// Scope restricts which stages a credential may be released to. The zero
// value (no stages) is the global scope covering every stage.
type Scope struct {
	stages map[string]struct{}
}

// GlobalScope returns a scope covering all stages.
func GlobalScope() Scope { return Scope{} }

// StageScope returns a scope covering only the named stages.
func StageScope(stages ...string) Scope {
	set := make(map[string]struct{}, len(stages))
	for _, st := range stages {
		set[st] = struct{}{}
	}
	return Scope{stages: set}
}

// IsGlobal reports whether the scope covers every stage.
func (s Scope) IsGlobal() bool { return len(s.stages) == 0 }

// Covers reports whether the scope permits release to the named stage.
func (s Scope) Covers(stage string) bool {
	if s.IsGlobal() {
		return true
	}
	_, ok := s.stages[stage]
	return ok
}

// Overlaps reports whether two scopes could both release to some stage.
// The global scope overlaps everything.
func (s Scope) Overlaps(o Scope) bool {
	if s.IsGlobal() || o.IsGlobal() {
		return true
	}
	for st := range s.stages {
		if _, ok := o.stages[st]; ok {
			return true
		}
	}
	return false
}

// Stages returns the stage names the scope covers, or nil for global.
func (s Scope) Stages() []string {
	if s.IsGlobal() {
		return nil
	}
	out := make([]string, 0, len(s.stages))
	for st := range s.stages {
		out = append(out, st)
	}
	return out
}
