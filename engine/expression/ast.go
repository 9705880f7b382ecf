package expression

// Node is a tiny AST node for the condition sandbox. Only numbers, booleans,
// comparisons, and logical conjunction/disjunction are representable — by
// construction there is no identifier, call, or member-access node, so the
// sandbox cannot express arbitrary code (spec §4.A, design note §9).
type Node interface {
	eval() (Value, error)
}

// Value is either a float64 or a bool — the only two scalar kinds a
// condition expression can produce.
type Value struct {
	IsBool bool
	Num    float64
	Bool   bool
}

func numberValue(n float64) Value { return Value{Num: n} }
func boolValue(b bool) Value      { return Value{IsBool: true, Bool: b} }

// Truthy reports the value's truthiness under the spec's rule: 0/false are
// falsy, everything else representable here is truthy.
func (v Value) Truthy() bool {
	if v.IsBool {
		return v.Bool
	}
	return v.Num != 0
}

type numberLit struct{ value float64 }

func (n *numberLit) eval() (Value, error) { return numberValue(n.value), nil }

type boolLit struct{ value bool }

func (b *boolLit) eval() (Value, error) { return boolValue(b.value), nil }

type compareNode struct {
	op          string
	left, right Node
}

func (c *compareNode) eval() (Value, error) {
	l, err := c.left.eval()
	if err != nil {
		return Value{}, err
	}
	r, err := c.right.eval()
	if err != nil {
		return Value{}, err
	}

	switch c.op {
	case "===", "!==":
		eq := valuesEqual(l, r)
		if c.op == "!==" {
			eq = !eq
		}
		return boolValue(eq), nil
	case ">", "<", ">=", "<=":
		if l.IsBool || r.IsBool {
			return Value{}, errNotComparable
		}
		var result bool
		switch c.op {
		case ">":
			result = l.Num > r.Num
		case "<":
			result = l.Num < r.Num
		case ">=":
			result = l.Num >= r.Num
		case "<=":
			result = l.Num <= r.Num
		}
		return boolValue(result), nil
	default:
		return Value{}, errUnknownOperator
	}
}

func valuesEqual(l, r Value) bool {
	if l.IsBool != r.IsBool {
		return false
	}
	if l.IsBool {
		return l.Bool == r.Bool
	}
	return l.Num == r.Num
}

type logicalNode struct {
	op          string // "&&" or "||"
	left, right Node
}

func (n *logicalNode) eval() (Value, error) {
	l, err := n.left.eval()
	if err != nil {
		return Value{}, err
	}
	if n.op == "&&" && !l.Truthy() {
		return boolValue(false), nil
	}
	if n.op == "||" && l.Truthy() {
		return boolValue(true), nil
	}
	r, err := n.right.eval()
	if err != nil {
		return Value{}, err
	}
	if n.op == "&&" {
		return boolValue(l.Truthy() && r.Truthy()), nil
	}
	return boolValue(l.Truthy() || r.Truthy()), nil
}

type unaryMinusNode struct{ inner Node }

func (u *unaryMinusNode) eval() (Value, error) {
	v, err := u.inner.eval()
	if err != nil {
		return Value{}, err
	}
	if v.IsBool {
		return Value{}, errNotComparable
	}
	return numberValue(-v.Num), nil
}
