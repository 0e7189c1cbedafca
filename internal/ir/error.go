package ir

import "fmt"

// ConsistencyError reports an internal-consistency failure: an
// optimizer rule produced an instruction the code generator cannot
// lower, or a LOOP/ENDLOOP or IF/ENDIF nesting stack ran empty where it
// shouldn't have. Unmatched brackets in the source program also end up
// here, since the parser does not check them. It is fatal rather than
// a diagnosed source error: it carries no source position.
type ConsistencyError struct {
	// Where names the component that detected the problem, e.g.
	// "codegen" or "optimize.R4".
	Where string
	// Op is the offending instruction, if there is a single one.
	Op Kind
	// Msg is a human-readable description.
	Msg string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: internal consistency failure at %s: %s", e.Where, e.Op, e.Msg)
}

// NewConsistencyError builds a ConsistencyError.
func NewConsistencyError(where string, op Kind, msg string) error {
	return &ConsistencyError{Where: where, Op: op, Msg: msg}
}
