package query

// Operator names a field comparison.
//
// The set is closed: every backend compiler handles exactly these operators
// and rejects anything else with an UNKNOWN_OPERATOR error.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpLike       Operator = "like"
	OpNotLike    Operator = "notLike"
	OpILike      Operator = "iLike"
	OpNotILike   Operator = "notILike"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpIs         Operator = "is"
	OpIsNot      Operator = "isNot"
	OpBetween    Operator = "between"
	OpNotBetween Operator = "notBetween"
)

// Operators lists every supported operator in a stable order.
var Operators = []Operator{
	OpEq, OpNeq,
	OpGt, OpGte, OpLt, OpLte,
	OpLike, OpNotLike, OpILike, OpNotILike,
	OpIn, OpNotIn,
	OpIs, OpIsNot,
	OpBetween, OpNotBetween,
}

var operatorSet = func() map[Operator]struct{} {
	m := make(map[Operator]struct{}, len(Operators))
	for _, op := range Operators {
		m[op] = struct{}{}
	}
	return m
}()

// IsOperator reports whether name is a supported operator.
func IsOperator(name string) bool {
	_, ok := operatorSet[Operator(name)]
	return ok
}

// ParseOperator converts a name into an Operator.
func ParseOperator(name string) (Operator, error) {
	if !IsOperator(name) {
		return "", NewUnknownOperatorError(name)
	}
	return Operator(name), nil
}

// Valid reports whether op is in the supported set.
func (op Operator) Valid() bool {
	return IsOperator(string(op))
}

// IsLike reports whether op is a pattern-match operator.
func (op Operator) IsLike() bool {
	switch op {
	case OpLike, OpNotLike, OpILike, OpNotILike:
		return true
	}
	return false
}

// IsList reports whether op takes a list of values.
func (op Operator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// IsRange reports whether op takes a Range value.
func (op Operator) IsRange() bool {
	return op == OpBetween || op == OpNotBetween
}
