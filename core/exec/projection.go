package exec

import (
	"github.com/gojodb/txcore/core/catalog"
)

// ProjectionExecutor selects and repacks a subset of its child's columns
// into a new, contiguous tuple layout (original_source's
// executor_projection.h).
type ProjectionExecutor struct {
	prev Executor
	cols []catalog.Column
	len  int
	// srcCols mirrors cols but with each entry's Offset/Length as they
	// appear in prev's layout, so Next can copy straight from prev's tuple.
	srcCols []catalog.Column
}

// NewProjectionExecutor projects prev's output down to selCols, in order.
func NewProjectionExecutor(prev Executor, selCols []string) *ProjectionExecutor {
	prevCols := prev.Columns()
	byName := make(map[string]catalog.Column, len(prevCols))
	for _, c := range prevCols {
		byName[c.Name] = c
	}

	cols := make([]catalog.Column, 0, len(selCols))
	srcCols := make([]catalog.Column, 0, len(selCols))
	offset := 0
	for _, name := range selCols {
		src := byName[name]
		srcCols = append(srcCols, src)
		dst := src
		dst.Offset = offset
		offset += dst.Length
		cols = append(cols, dst)
	}
	return &ProjectionExecutor{prev: prev, cols: cols, len: offset, srcCols: srcCols}
}

func (e *ProjectionExecutor) Columns() []catalog.Column { return e.cols }
func (e *ProjectionExecutor) TupleLen() int             { return e.len }
func (e *ProjectionExecutor) Open() error               { return e.prev.Open() }

// Next projects the child's next tuple down to the selected columns.
func (e *ProjectionExecutor) Next() (Tuple, bool, error) {
	prevTuple, ok, err := e.prev.Next()
	if err != nil || !ok {
		return Tuple{}, ok, err
	}
	buf := make([]byte, e.len)
	for i, dst := range e.cols {
		src := e.srcCols[i]
		copy(buf[dst.Offset:dst.Offset+dst.Length], prevTuple.Data[src.Offset:src.Offset+src.Length])
	}
	return Tuple{Data: buf, Rid: prevTuple.Rid}, true, nil
}
