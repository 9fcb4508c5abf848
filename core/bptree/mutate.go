package bptree

import (
	"fmt"

	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/storage"
)

// findLeaf descends from the root to the leaf that would contain key,
// using internal_lookup (upper_bound(key)-1) at each internal node.
func (t *Tree) findLeaf(key []byte) (storage.PageID, error) {
	t.mu.Lock()
	pageID := t.header.RootPage
	t.mu.Unlock()
	for {
		page, v, err := t.fetchNode(pageID)
		if err != nil {
			return storage.InvalidPageID, err
		}
		page.RLock()
		leaf := v.isLeaf()
		var next storage.PageID
		if !leaf {
			pos := t.upperBound(v, key) - 1
			if pos < 0 {
				pos = 0
			}
			next = v.child(pos)
		}
		page.RUnlock()
		t.bpm.UnpinPage(pageID, false)
		if leaf {
			return pageID, nil
		}
		pageID = next
	}
}

// InsertEntry inserts (key, rid) into the tree. If key already exists, the
// tree is left unchanged and inserted is false (spec §9: duplicate-key
// inserts are silently ignored at the leaf).
func (t *Tree) InsertEntry(key []byte, rid heap.Rid) (leafPage storage.PageID, inserted bool, err error) {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	t.mu.Lock()
	empty := t.header.RootPage == storage.InvalidPageID
	t.mu.Unlock()
	if empty {
		page, pageID, err := t.bpm.NewPage()
		if err != nil {
			return storage.InvalidPageID, false, err
		}
		v := newNodeView(page, t.keyLen(), t.maxKeys())
		v.setLeaf(true)
		v.setNumKeys(0)
		v.setParent(storage.InvalidPageID)
		v.setPrevLeaf(storage.InvalidPageID)
		v.setNextLeaf(storage.InvalidPageID)
		v.insertSlot(0)
		v.setKey(0, key)
		v.setRid(0, uint32(rid.PageNo), rid.SlotNo)
		page.SetDirty(true)
		t.bpm.UnpinPage(pageID, true)

		t.mu.Lock()
		t.header.RootPage = pageID
		t.header.FirstLeaf = pageID
		t.header.LastLeaf = pageID
		t.header.NumPages++
		err = t.flushHeaderLocked()
		t.mu.Unlock()
		return pageID, true, err
	}

	leafID, err := t.findLeaf(key)
	if err != nil {
		return storage.InvalidPageID, false, err
	}

	var needSplit bool
	err = t.withNode(leafID, func(v nodeView) error {
		pos := t.lowerBound(v, key)
		if pos < v.numKeys() && t.cmp(v.key(pos), key) == 0 {
			inserted = false
			return nil
		}
		v.insertSlot(pos)
		v.setKey(pos, key)
		v.setRid(pos, uint32(rid.PageNo), rid.SlotNo)
		inserted = true
		needSplit = v.numKeys() >= t.maxKeys()
		return nil
	})
	if err != nil || !inserted {
		return leafID, inserted, err
	}

	if needSplit {
		newID, sepKey, err := t.splitNode(leafID)
		if err != nil {
			return leafID, true, err
		}
		if err := t.insertIntoParent(leafID, sepKey, newID); err != nil {
			return leafID, true, err
		}
	}
	return leafID, true, nil
}

// withNode fetches pageID, locks it for writing, runs fn, marks it dirty,
// and unpins it. fn must not itself fetch pageID again.
func (t *Tree) withNode(pageID storage.PageID, fn func(v nodeView) error) error {
	page, v, err := t.fetchNode(pageID)
	if err != nil {
		return err
	}
	page.Lock()
	err = fn(v)
	page.SetDirty(true)
	page.Unlock()
	t.bpm.UnpinPage(pageID, true)
	return err
}

// splitNode moves the right half of pageID's entries into a freshly
// allocated sibling page, right-biased (spec §4.2: "the right sibling
// receives floor(total/2) entries"), fixes up leaf links or children's
// parent pointers as appropriate, and returns the new page id and the
// separator key (the new right node's first key).
func (t *Tree) splitNode(pageID storage.PageID) (storage.PageID, []byte, error) {
	page, v, err := t.fetchNode(pageID)
	if err != nil {
		return storage.InvalidPageID, nil, err
	}
	page.Lock()
	total := v.numKeys()
	moveCount := total / 2
	start := total - moveCount
	isLeaf := v.isLeaf()
	parent := v.parent()
	oldNext := v.nextLeaf()

	newPage, newID, err := t.bpm.NewPage()
	if err != nil {
		page.Unlock()
		t.bpm.UnpinPage(pageID, false)
		return storage.InvalidPageID, nil, err
	}
	nv := newNodeView(newPage, t.keyLen(), t.maxKeys())
	nv.setLeaf(isLeaf)
	nv.setNumKeys(moveCount)
	nv.setParent(parent)
	for i := 0; i < moveCount; i++ {
		nv.setKey(i, v.key(start+i))
		copy(nv.valueRaw(i), v.valueRaw(start+i))
	}
	v.setNumKeys(start)
	sepKey := make([]byte, t.keyLen())
	copy(sepKey, nv.key(0))

	if isLeaf {
		nv.setPrevLeaf(pageID)
		nv.setNextLeaf(oldNext)
		v.setNextLeaf(newID)
	}
	newPage.SetDirty(true)
	page.SetDirty(true)
	page.Unlock()
	t.bpm.UnpinPage(newID, true)
	t.bpm.UnpinPage(pageID, true)

	if isLeaf {
		if oldNext != storage.InvalidPageID {
			if err := t.withNode(oldNext, func(ov nodeView) error {
				ov.setPrevLeaf(newID)
				return nil
			}); err != nil {
				return storage.InvalidPageID, nil, err
			}
		} else {
			t.mu.Lock()
			t.header.LastLeaf = newID
			err := t.flushHeaderLocked()
			t.mu.Unlock()
			if err != nil {
				return storage.InvalidPageID, nil, err
			}
		}
	} else {
		for i := 0; i < moveCount; i++ {
			childID, err := t.childAt(newID, i)
			if err != nil {
				return storage.InvalidPageID, nil, err
			}
			if err := t.withNode(childID, func(cv nodeView) error {
				cv.setParent(newID)
				return nil
			}); err != nil {
				return storage.InvalidPageID, nil, err
			}
		}
	}

	t.mu.Lock()
	t.header.NumPages++
	err = t.flushHeaderLocked()
	t.mu.Unlock()
	return newID, sepKey, err
}

func (t *Tree) childAt(pageID storage.PageID, i int) (storage.PageID, error) {
	page, v, err := t.fetchNode(pageID)
	if err != nil {
		return storage.InvalidPageID, err
	}
	page.RLock()
	c := v.child(i)
	page.RUnlock()
	t.bpm.UnpinPage(pageID, false)
	return c, nil
}

// insertIntoParent links a freshly split pair (leftID, rightID) into
// leftID's parent, creating a new root if leftID had none (spec §4.2:
// "Re-entering insert_into_parent at the root creates a new root whose two
// children are the split pair").
func (t *Tree) insertIntoParent(leftID storage.PageID, sepKey []byte, rightID storage.PageID) error {
	page, v, err := t.fetchNode(leftID)
	if err != nil {
		return err
	}
	page.RLock()
	parentID := v.parent()
	leftFirstKey := make([]byte, t.keyLen())
	copy(leftFirstKey, v.key(0))
	page.RUnlock()
	t.bpm.UnpinPage(leftID, false)

	if parentID == storage.InvalidPageID {
		newPage, newRootID, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		rv := newNodeView(newPage, t.keyLen(), t.maxKeys())
		rv.setLeaf(false)
		rv.setParent(storage.InvalidPageID)
		rv.setNumKeys(0)
		rv.insertSlot(0)
		rv.setKey(0, leftFirstKey)
		rv.setChild(0, leftID)
		rv.insertSlot(1)
		rv.setKey(1, sepKey)
		rv.setChild(1, rightID)
		newPage.SetDirty(true)
		t.bpm.UnpinPage(newRootID, true)

		if err := t.withNode(leftID, func(lv nodeView) error { lv.setParent(newRootID); return nil }); err != nil {
			return err
		}
		if err := t.withNode(rightID, func(rv nodeView) error { rv.setParent(newRootID); return nil }); err != nil {
			return err
		}
		t.mu.Lock()
		t.header.RootPage = newRootID
		t.header.NumPages++
		err = t.flushHeaderLocked()
		t.mu.Unlock()
		return err
	}

	if err := t.withNode(rightID, func(rv nodeView) error { rv.setParent(parentID); return nil }); err != nil {
		return err
	}

	var needSplit bool
	err = t.withNode(parentID, func(pv nodeView) error {
		idx := -1
		for i := 0; i < pv.numKeys(); i++ {
			if pv.child(i) == leftID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("bptree: corrupt tree: child %d not found in parent %d", leftID, parentID)
		}
		pv.insertSlot(idx + 1)
		pv.setKey(idx+1, sepKey)
		pv.setChild(idx+1, rightID)
		needSplit = pv.numKeys() >= t.maxKeys()
		return nil
	})
	if err != nil {
		return err
	}

	if needSplit {
		newID, sep2, err := t.splitNode(parentID)
		if err != nil {
			return err
		}
		return t.insertIntoParent(parentID, sep2, newID)
	}
	return nil
}
