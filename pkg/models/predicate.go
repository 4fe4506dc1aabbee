package models

// Predicate evaluates a condition node against a contact. The comparison rule
// set is configuration-driven: condition semantics are not baked into the
// interpreter.
type Predicate interface {
	Evaluate(contact *Contact, config map[string]any) (bool, error)
}

// GetPredicate selects a predicate implementation by kind. Unknown kinds fall
// back to the always-true predicate so a misconfigured condition node degrades
// to a pass-through rather than failing the run.
func GetPredicate(kind string) Predicate {
	if kind == "field" {
		return &FieldPredicate{}
	}

	return &TruePredicate{}
}

// TruePredicate accepts every contact. The default for condition nodes with no
// predicate configuration.
type TruePredicate struct{}

func (p TruePredicate) Evaluate(_ *Contact, _ map[string]any) (bool, error) {
	return true, nil
}
