package bptree

import (
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/storage"
)

// LowerBoundIid returns the position of the first entry >= key. If every
// entry on the landing leaf is smaller than key, the cursor advances to
// slot 0 of the next leaf (spec §4.2, §9: Iid boundary semantics).
func (t *Tree) LowerBoundIid(key []byte) (Iid, error) {
	t.mu.Lock()
	empty := t.header.RootPage == storage.InvalidPageID
	t.mu.Unlock()
	if empty {
		return InvalidIid, nil
	}
	leafID, err := t.findLeaf(key)
	if err != nil {
		return InvalidIid, err
	}
	page, v, err := t.fetchNode(leafID)
	if err != nil {
		return InvalidIid, err
	}
	page.RLock()
	pos := t.lowerBound(v, key)
	n := v.numKeys()
	next := v.nextLeaf()
	page.RUnlock()
	t.bpm.UnpinPage(leafID, false)

	if pos < n {
		return Iid{LeafPage: leafID, Slot: pos}, nil
	}
	if next == storage.InvalidPageID {
		return InvalidIid, nil
	}
	return Iid{LeafPage: next, Slot: 0}, nil
}

// UpperBoundIid returns the position of the first entry > key, with the
// same next-leaf advancement as LowerBoundIid.
func (t *Tree) UpperBoundIid(key []byte) (Iid, error) {
	t.mu.Lock()
	empty := t.header.RootPage == storage.InvalidPageID
	t.mu.Unlock()
	if empty {
		return InvalidIid, nil
	}
	leafID, err := t.findLeaf(key)
	if err != nil {
		return InvalidIid, err
	}
	page, v, err := t.fetchNode(leafID)
	if err != nil {
		return InvalidIid, err
	}
	page.RLock()
	pos := t.upperBound(v, key)
	n := v.numKeys()
	next := v.nextLeaf()
	page.RUnlock()
	t.bpm.UnpinPage(leafID, false)

	if pos < n {
		return Iid{LeafPage: leafID, Slot: pos}, nil
	}
	if next == storage.InvalidPageID {
		return InvalidIid, nil
	}
	return Iid{LeafPage: next, Slot: 0}, nil
}

// LeafBegin returns the position of the first entry in the tree.
func (t *Tree) LeafBegin() Iid {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.header.FirstLeaf == storage.InvalidPageID {
		return InvalidIid
	}
	return Iid{LeafPage: t.header.FirstLeaf, Slot: 0}
}

// LeafEnd returns the sentinel one-past-the-last position.
func (t *Tree) LeafEnd() Iid {
	return InvalidIid
}

// RangeScan walks leaf-linked entries from a lower (inclusive) Iid up to,
// but excluding, an upper Iid (spec §4.2: ordered iteration via leaf
// links, no root latch held while scanning).
type RangeScan struct {
	t   *Tree
	cur Iid
	end Iid
}

// NewRangeScan returns a cursor over [lower, upper). Pass t.LeafEnd() as
// upper for an unbounded scan to the end of the index.
func NewRangeScan(t *Tree, lower, upper Iid) *RangeScan {
	return &RangeScan{t: t, cur: lower, end: upper}
}

// Next returns the next (key, rid) pair in order, or ok=false when the
// scan is exhausted.
func (s *RangeScan) Next() (key []byte, rid heap.Rid, ok bool, err error) {
	if !s.cur.IsValid() {
		return nil, heap.Rid{}, false, nil
	}
	if s.end.IsValid() && s.cur == s.end {
		return nil, heap.Rid{}, false, nil
	}

	t := s.t
	page, v, err := t.fetchNode(s.cur.LeafPage)
	if err != nil {
		return nil, heap.Rid{}, false, err
	}
	page.RLock()
	n := v.numKeys()
	if s.cur.Slot >= n {
		next := v.nextLeaf()
		page.RUnlock()
		t.bpm.UnpinPage(s.cur.LeafPage, false)
		if next == storage.InvalidPageID {
			s.cur = InvalidIid
			return nil, heap.Rid{}, false, nil
		}
		s.cur = Iid{LeafPage: next, Slot: 0}
		return s.Next()
	}

	key = make([]byte, t.keyLen())
	copy(key, v.key(s.cur.Slot))
	pn, sn := v.rid(s.cur.Slot)
	rid = heap.Rid{PageNo: storage.PageID(pn), SlotNo: sn}
	page.RUnlock()
	t.bpm.UnpinPage(s.cur.LeafPage, false)

	s.cur = Iid{LeafPage: s.cur.LeafPage, Slot: s.cur.Slot + 1}
	return key, rid, true, nil
}
