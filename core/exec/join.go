package exec

import (
	"github.com/gojodb/txcore/core/catalog"
)

// NestedLoopJoinExecutor pairs every left tuple with every right tuple
// satisfying a conjunctive join predicate, evaluated against the
// concatenated (left||right) record (original_source's
// executor_nestedloop_join.h). The right side is rewound to its own Open
// for each left tuple; there is no index/hash acceleration, matching the
// original's plain nested loop.
type NestedLoopJoinExecutor struct {
	left, right Executor
	cols        []catalog.Column
	len         int
	conds       []Condition

	leftTuple Tuple
	leftOK    bool
}

// NewNestedLoopJoinExecutor joins left and right on conds, which are
// evaluated against the concatenated record with right-hand column
// offsets shifted by left's tuple length (mirroring the original's column
// offset rewrite in its constructor).
func NewNestedLoopJoinExecutor(left, right Executor, conds []Condition) *NestedLoopJoinExecutor {
	leftCols := left.Columns()
	rightCols := right.Columns()
	cols := make([]catalog.Column, 0, len(leftCols)+len(rightCols))
	cols = append(cols, leftCols...)
	for _, c := range rightCols {
		c.Offset += left.TupleLen()
		cols = append(cols, c)
	}
	return &NestedLoopJoinExecutor{
		left: left, right: right, cols: cols,
		len: left.TupleLen() + right.TupleLen(), conds: conds,
	}
}

func (e *NestedLoopJoinExecutor) Columns() []catalog.Column { return e.cols }
func (e *NestedLoopJoinExecutor) TupleLen() int             { return e.len }

// Open opens both children. Each child acquires its own locks via its Open.
func (e *NestedLoopJoinExecutor) Open() error {
	if err := e.left.Open(); err != nil {
		return err
	}
	leftTuple, ok, err := e.left.Next()
	if err != nil {
		return err
	}
	e.leftTuple, e.leftOK = leftTuple, ok
	if !ok {
		return nil
	}
	return e.right.Open()
}

func (e *NestedLoopJoinExecutor) joined(l, r Tuple) Tuple {
	buf := make([]byte, e.len)
	copy(buf, l.Data)
	copy(buf[len(l.Data):], r.Data)
	return Tuple{Data: buf}
}

// Next returns the next matching (left, right) pair, advancing the right
// side first and rewinding+advancing the left side when the right side is
// exhausted (original's beginTuple/nextTuple double loop).
func (e *NestedLoopJoinExecutor) Next() (Tuple, bool, error) {
	for e.leftOK {
		rightTuple, ok, err := e.right.Next()
		if err != nil {
			return Tuple{}, false, err
		}
		if !ok {
			if err := e.right.Open(); err != nil {
				return Tuple{}, false, err
			}
			leftTuple, ok, err := e.left.Next()
			if err != nil {
				return Tuple{}, false, err
			}
			e.leftTuple, e.leftOK = leftTuple, ok
			continue
		}
		joined := e.joined(e.leftTuple, rightTuple)
		matched, err := evalConds(e.conds, joined.Data)
		if err != nil {
			return Tuple{}, false, err
		}
		if matched {
			return joined, true, nil
		}
	}
	return Tuple{}, false, nil
}
