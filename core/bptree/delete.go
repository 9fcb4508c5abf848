package bptree

import (
	"fmt"

	"github.com/gojodb/txcore/core/storage"
)

// DeleteEntry removes key from the tree, then rebalances via
// redistribute-or-coalesce if the leaf underflowed (spec §4.2).
func (t *Tree) DeleteEntry(key []byte) error {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	t.mu.Lock()
	root := t.header.RootPage
	t.mu.Unlock()
	if root == storage.InvalidPageID {
		return ErrIndexEntryNotFound
	}

	leafID, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	var found, erasedFirst bool
	err = t.withNode(leafID, func(v nodeView) error {
		pos := t.lowerBound(v, key)
		if pos >= v.numKeys() || t.cmp(v.key(pos), key) != 0 {
			return nil
		}
		found = true
		erasedFirst = pos == 0
		v.eraseSlot(pos)
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrIndexEntryNotFound
	}

	t.mu.Lock()
	isRoot := leafID == t.header.RootPage
	t.mu.Unlock()

	if isRoot {
		return t.adjustRoot(leafID)
	}

	numKeys, err := t.nodeNumKeys(leafID)
	if err != nil {
		return err
	}
	if numKeys < t.minKeys() {
		return t.coalesceOrRedistribute(leafID)
	}
	if erasedFirst {
		return t.fixParentKeys(leafID)
	}
	return nil
}

func (t *Tree) nodeNumKeys(pageID storage.PageID) (int, error) {
	page, v, err := t.fetchNode(pageID)
	if err != nil {
		return 0, err
	}
	page.RLock()
	n := v.numKeys()
	page.RUnlock()
	t.bpm.UnpinPage(pageID, false)
	return n, nil
}

// fixParentKeys rewrites ancestor separators whenever a subtree's first
// key changed, propagating upward only while the changed slot is itself
// index 0 of its parent (spec §4.2 separator-maintenance pass, §9
// maintain_parent).
func (t *Tree) fixParentKeys(pageID storage.PageID) error {
	page, v, err := t.fetchNode(pageID)
	if err != nil {
		return err
	}
	page.RLock()
	parentID := v.parent()
	firstKey := make([]byte, t.keyLen())
	copy(firstKey, v.key(0))
	page.RUnlock()
	t.bpm.UnpinPage(pageID, false)

	if parentID == storage.InvalidPageID {
		return nil
	}

	var idx int
	var changed bool
	err = t.withNode(parentID, func(pv nodeView) error {
		idx = -1
		for i := 0; i < pv.numKeys(); i++ {
			if pv.child(i) == pageID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("bptree: corrupt tree: child %d not found in parent %d", pageID, parentID)
		}
		if t.cmp(pv.key(idx), firstKey) != 0 {
			pv.setKey(idx, firstKey)
			changed = true
		}
		return nil
	})
	if err != nil || !changed || idx != 0 {
		return err
	}
	return t.fixParentKeys(parentID)
}

// adjustRoot shrinks the tree when its root becomes degenerate: an
// internal node with a single child is replaced by that child, and an
// empty leaf root empties the tree entirely (spec §4.2).
func (t *Tree) adjustRoot(rootID storage.PageID) error {
	page, v, err := t.fetchNode(rootID)
	if err != nil {
		return err
	}
	page.RLock()
	leaf := v.isLeaf()
	numKeys := v.numKeys()
	var onlyChild storage.PageID
	if !leaf && numKeys == 1 {
		onlyChild = v.child(0)
	}
	page.RUnlock()
	t.bpm.UnpinPage(rootID, false)

	if !leaf && numKeys == 1 {
		if err := t.withNode(onlyChild, func(cv nodeView) error { cv.setParent(storage.InvalidPageID); return nil }); err != nil {
			return err
		}
		t.mu.Lock()
		t.header.RootPage = onlyChild
		err := t.flushHeaderLocked()
		t.mu.Unlock()
		return err
	}
	if leaf && numKeys == 0 {
		t.mu.Lock()
		t.header.RootPage = storage.InvalidPageID
		t.header.FirstLeaf = storage.InvalidPageID
		t.header.LastLeaf = storage.InvalidPageID
		err := t.flushHeaderLocked()
		t.mu.Unlock()
		return err
	}
	return nil
}

// coalesceOrRedistribute rebalances an underflowed non-root node against
// its left sibling if one exists, else its right sibling (spec §4.2).
func (t *Tree) coalesceOrRedistribute(nodeID storage.PageID) error {
	page, v, err := t.fetchNode(nodeID)
	if err != nil {
		return err
	}
	page.RLock()
	parentID := v.parent()
	page.RUnlock()
	t.bpm.UnpinPage(nodeID, false)

	if parentID == storage.InvalidPageID {
		return t.adjustRoot(nodeID)
	}

	var idx, neighborIdx int
	var neighborID storage.PageID
	err = func() error {
		ppage, pv, err := t.fetchNode(parentID)
		if err != nil {
			return err
		}
		ppage.RLock()
		defer ppage.RUnlock()
		defer t.bpm.UnpinPage(parentID, false)
		idx = -1
		for i := 0; i < pv.numKeys(); i++ {
			if pv.child(i) == nodeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("bptree: corrupt tree: child %d not found in parent %d", nodeID, parentID)
		}
		if idx == 0 {
			neighborIdx = 1
		} else {
			neighborIdx = idx - 1
		}
		neighborID = pv.child(neighborIdx)
		return nil
	}()
	if err != nil {
		return err
	}
	neighborIsLeft := neighborIdx < idx

	nodeSize, err := t.nodeNumKeys(nodeID)
	if err != nil {
		return err
	}
	neighborSize, err := t.nodeNumKeys(neighborID)
	if err != nil {
		return err
	}

	if nodeSize+neighborSize <= t.maxKeys() {
		return t.coalesce(nodeID, neighborID, neighborIsLeft, parentID, idx, neighborIdx)
	}
	return t.redistribute(nodeID, neighborID, neighborIsLeft, idx, neighborIdx)
}

// coalesce merges node and neighbor into the left-hand one of the pair,
// removes the now-redundant separator from the parent, and recurses on
// the parent (which may itself underflow) (spec §4.2). The right-hand page
// is left in the file, unreferenced — there is no B+ tree freelist, so
// pages orphaned by a merge are never reused (see DESIGN.md).
func (t *Tree) coalesce(nodeID, neighborID storage.PageID, neighborIsLeft bool, parentID storage.PageID, idx, neighborIdx int) error {
	var leftID, rightID storage.PageID
	var eraseIdx int
	if neighborIsLeft {
		leftID, rightID = neighborID, nodeID
		eraseIdx = idx
	} else {
		leftID, rightID = nodeID, neighborID
		eraseIdx = neighborIdx
	}

	rightPage, rv, err := t.fetchNode(rightID)
	if err != nil {
		return err
	}
	rightPage.RLock()
	rightCount := rv.numKeys()
	rightIsLeaf := rv.isLeaf()
	rightNext := rv.nextLeaf()
	rightKeys := make([][]byte, rightCount)
	rightVals := make([][]byte, rightCount)
	for i := 0; i < rightCount; i++ {
		rightKeys[i] = append([]byte(nil), rv.key(i)...)
		rightVals[i] = append([]byte(nil), rv.valueRaw(i)...)
	}
	rightPage.RUnlock()
	t.bpm.UnpinPage(rightID, false)

	var movedChildren []storage.PageID
	err = t.withNode(leftID, func(lv nodeView) error {
		base := lv.numKeys()
		lv.setNumKeys(base + rightCount)
		for i := 0; i < rightCount; i++ {
			lv.setKey(base+i, rightKeys[i])
			copy(lv.valueRaw(base+i), rightVals[i])
			if !rightIsLeaf {
				movedChildren = append(movedChildren, lv.child(base+i))
			}
		}
		if rightIsLeaf {
			lv.setNextLeaf(rightNext)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if rightIsLeaf {
		if rightNext != storage.InvalidPageID {
			if err := t.withNode(rightNext, func(nv nodeView) error { nv.setPrevLeaf(leftID); return nil }); err != nil {
				return err
			}
		} else {
			t.mu.Lock()
			t.header.LastLeaf = leftID
			err := t.flushHeaderLocked()
			t.mu.Unlock()
			if err != nil {
				return err
			}
		}
	} else {
		for _, childID := range movedChildren {
			if err := t.withNode(childID, func(cv nodeView) error { cv.setParent(leftID); return nil }); err != nil {
				return err
			}
		}
	}

	var parentIsRoot bool
	var parentUnderflow bool
	err = t.withNode(parentID, func(pv nodeView) error {
		pv.eraseSlot(eraseIdx)
		parentUnderflow = pv.numKeys() < t.minKeys()
		return nil
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	parentIsRoot = parentID == t.header.RootPage
	t.mu.Unlock()

	if parentIsRoot {
		return t.adjustRoot(parentID)
	}
	if parentUnderflow {
		return t.coalesceOrRedistribute(parentID)
	}
	return nil
}

// redistribute borrows one entry from the sibling, preferring the move
// that keeps keys sorted (take the neighbor's last entry if it is the
// left sibling, its first entry if it is the right sibling), then fixes
// up ancestor separators (spec §4.2).
func (t *Tree) redistribute(nodeID, neighborID storage.PageID, neighborIsLeft bool, idx, neighborIdx int) error {
	if neighborIsLeft {
		var borrowedKey, borrowedVal []byte
		var isLeaf bool
		var borrowedChild storage.PageID
		err := t.withNode(neighborID, func(nv nodeView) error {
			last := nv.numKeys() - 1
			borrowedKey = append([]byte(nil), nv.key(last)...)
			borrowedVal = append([]byte(nil), nv.valueRaw(last)...)
			isLeaf = nv.isLeaf()
			if !isLeaf {
				borrowedChild = nv.child(last)
			}
			nv.eraseSlot(last)
			return nil
		})
		if err != nil {
			return err
		}
		if err := t.withNode(nodeID, func(v nodeView) error {
			v.insertSlot(0)
			v.setKey(0, borrowedKey)
			copy(v.valueRaw(0), borrowedVal)
			return nil
		}); err != nil {
			return err
		}
		if !isLeaf {
			if err := t.withNode(borrowedChild, func(cv nodeView) error { cv.setParent(nodeID); return nil }); err != nil {
				return err
			}
		}
		return t.fixParentKeys(nodeID)
	}

	var borrowedKey, borrowedVal []byte
	var isLeaf bool
	var borrowedChild storage.PageID
	err := t.withNode(neighborID, func(nv nodeView) error {
		borrowedKey = append([]byte(nil), nv.key(0)...)
		borrowedVal = append([]byte(nil), nv.valueRaw(0)...)
		isLeaf = nv.isLeaf()
		if !isLeaf {
			borrowedChild = nv.child(0)
		}
		nv.eraseSlot(0)
		return nil
	})
	if err != nil {
		return err
	}
	if err := t.withNode(nodeID, func(v nodeView) error {
		n := v.numKeys()
		v.setNumKeys(n + 1)
		v.setKey(n, borrowedKey)
		copy(v.valueRaw(n), borrowedVal)
		return nil
	}); err != nil {
		return err
	}
	if !isLeaf {
		if err := t.withNode(borrowedChild, func(cv nodeView) error { cv.setParent(nodeID); return nil }); err != nil {
			return err
		}
	}
	return t.fixParentKeys(neighborID)
}
