package exec

import (
	"fmt"

	"github.com/gojodb/txcore/core/catalog"
)

// CompOp is a scan predicate's comparison operator (spec §4.2's per-type
// comparison, lifted to the executor boundary).
type CompOp int

const (
	OpEq CompOp = iota
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
)

// Condition is one conjunct of a scan's predicate: Col compared against a
// literal Value of the same type and length. Conjunction only — the
// original's fed_conds_ is likewise a flat AND list, no OR/NOT.
type Condition struct {
	Col   catalog.Column
	Op    CompOp
	Value []byte
}

func (c Condition) eval(record []byte) (bool, error) {
	lhs := record[c.Col.Offset : c.Col.Offset+c.Col.Length]
	cmp := catalog.CompareValue(c.Col.Type, lhs, c.Value)
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("exec: unexpected comparison operator %d", c.Op)
	}
}

// evalConds is the conjunction of every condition (original's eval_conds).
func evalConds(conds []Condition, record []byte) (bool, error) {
	for _, c := range conds {
		ok, err := c.eval(record)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
