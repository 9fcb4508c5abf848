// Package bptree implements the leaf-linked B+ tree index described in
// spec §4.2: composite binary keys ordered by a caller-supplied comparator,
// right-biased splits, redistribute-or-coalesce on underflow, and an Iid
// cursor for ordered/range iteration. A single root latch serializes all
// structural modifications; point reads do not take it (spec §4.2, §5).
//
// Grounded primarily on original_source/src/index/ix_index_handle.cpp for
// the split/redistribute/coalesce algorithm (the teacher's own btree.go is
// a classic, non-leaf-linked B-tree and does not cover this); node paging
// and checksums follow core/storage and the teacher's btree_core fork.
package bptree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/storage"
	"go.uber.org/zap"
)

// Comparator orders two encoded keys; see catalog.IndexDef.CompareKeys.
type Comparator func(a, b []byte) int

// Iid is an index iterator position: a leaf page and a slot within it.
type Iid struct {
	LeafPage storage.PageID
	Slot     int
}

// InvalidIid marks "before the first leaf" / "no position".
var InvalidIid = Iid{LeafPage: storage.InvalidPageID, Slot: -1}

func (i Iid) IsValid() bool { return i.LeafPage != storage.InvalidPageID }

type fileHeader struct {
	RootPage       storage.PageID
	FirstLeaf      storage.PageID
	LastLeaf       storage.PageID
	NumPages       uint32
	KeyLen         uint32
	MaxKeysPerNode uint32
}

const headerPayloadOffset = 12

// Tree is one index file: a file-per-index B+ tree (spec §3).
type Tree struct {
	disk *storage.DiskManager
	bpm  *storage.BufferPoolManager
	cmp  Comparator
	log  *zap.SugaredLogger

	rootLatch sync.Mutex // serializes all structural mutation (spec §4.2, §5)

	mu     sync.Mutex // guards the in-memory mirror of fileHeader
	header fileHeader
}

// Create makes a new, empty index file.
func Create(path string, pageSize, keyLen, poolSize int, cmp Comparator, log *zap.SugaredLogger) (*Tree, error) {
	disk := storage.NewDiskManager(path, pageSize)
	created, err := disk.OpenOrCreate()
	if err != nil {
		return nil, err
	}
	if !created {
		disk.Close()
		return nil, fmt.Errorf("bptree: %s already exists", path)
	}
	maxKeys := maxKeysForPage(pageSize, keyLen)
	if maxKeys < 3 {
		disk.Close()
		return nil, fmt.Errorf("bptree: key length %d too large for page size %d", keyLen, pageSize)
	}
	t := &Tree{
		disk: disk,
		bpm:  storage.NewBufferPoolManager(poolSize, disk, log),
		cmp:  cmp,
		log:  log,
		header: fileHeader{
			RootPage:       storage.InvalidPageID,
			FirstLeaf:      storage.InvalidPageID,
			LastLeaf:       storage.InvalidPageID,
			NumPages:       1,
			KeyLen:         uint32(keyLen),
			MaxKeysPerNode: uint32(maxKeys),
		},
	}
	if err := t.flushHeaderLocked(); err != nil {
		disk.Close()
		return nil, err
	}
	return t, nil
}

// Open opens an existing index file, wiring in cmp for this session (the
// catalog that produced cmp is not itself persisted — spec §1 out of scope).
func Open(path string, pageSize, poolSize int, cmp Comparator, log *zap.SugaredLogger) (*Tree, error) {
	disk := storage.NewDiskManager(path, pageSize)
	created, err := disk.OpenOrCreate()
	if err != nil {
		return nil, err
	}
	if created {
		disk.Close()
		return nil, fmt.Errorf("bptree: %s did not exist", path)
	}
	raw, err := disk.ReadHeaderPage()
	if err != nil {
		disk.Close()
		return nil, err
	}
	var hdr fileHeader
	if err := binary.Read(bytes.NewReader(raw[headerPayloadOffset:]), binary.BigEndian, &hdr); err != nil {
		disk.Close()
		return nil, fmt.Errorf("bptree: reading header: %w", err)
	}
	return &Tree{
		disk:   disk,
		bpm:    storage.NewBufferPoolManager(poolSize, disk, log),
		cmp:    cmp,
		log:    log,
		header: hdr,
	}, nil
}

func maxKeysForPage(pageSize, keyLen int) int {
	// pageSize - checksum(4) - nodeHeaderSize, divided among (keyLen + valueSize) per slot.
	return (pageSize - 4 - nodeHeaderSize) / (keyLen + valueSize)
}

func (t *Tree) flushHeaderLocked() error {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, headerPayloadOffset))
	if err := binary.Write(buf, binary.BigEndian, t.header); err != nil {
		return err
	}
	page := make([]byte, t.disk.PageSize())
	copy(page, buf.Bytes())
	existing, err := t.disk.ReadHeaderPage()
	if err == nil {
		copy(page[:headerPayloadOffset], existing[:headerPayloadOffset])
	}
	return t.disk.WriteHeaderPage(page)
}

func (t *Tree) keyLen() int  { return int(t.header.KeyLen) }
func (t *Tree) maxKeys() int { return int(t.header.MaxKeysPerNode) }
func (t *Tree) minKeys() int { return t.maxKeys() / 2 }

func (t *Tree) fetchNode(pageID storage.PageID) (*storage.Page, nodeView, error) {
	page, err := t.bpm.FetchPage(pageID)
	if err != nil {
		return nil, nodeView{}, err
	}
	return page, newNodeView(page, t.keyLen(), t.maxKeys()), nil
}

// lowerBound returns the first slot whose key is >= target (node-local
// binary search, spec §4.2).
func (t *Tree) lowerBound(v nodeView, target []byte) int {
	lo, hi := 0, v.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(v.key(mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the first slot whose key is > target.
func (t *Tree) upperBound(v nodeView, target []byte) int {
	lo, hi := 0, v.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(v.key(mid), target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// GetValue traverses from the root and returns the rid stored for key, if
// present.
func (t *Tree) GetValue(key []byte) (heap.Rid, bool, error) {
	t.mu.Lock()
	root := t.header.RootPage
	t.mu.Unlock()
	if root == storage.InvalidPageID {
		return heap.Rid{}, false, nil
	}

	pageID := root
	for {
		page, v, err := t.fetchNode(pageID)
		if err != nil {
			return heap.Rid{}, false, err
		}
		page.RLock()
		leaf := v.isLeaf()
		if leaf {
			pos := t.lowerBound(v, key)
			found := pos < v.numKeys() && t.cmp(v.key(pos), key) == 0
			var rid heap.Rid
			if found {
				pn, sn := v.rid(pos)
				rid = heap.Rid{PageNo: storage.PageID(pn), SlotNo: sn}
			}
			page.RUnlock()
			t.bpm.UnpinPage(pageID, false)
			return rid, found, nil
		}
		pos := t.upperBound(v, key) - 1
		if pos < 0 {
			pos = 0
		}
		next := v.child(pos)
		page.RUnlock()
		t.bpm.UnpinPage(pageID, false)
		pageID = next
	}
}

// Close flushes all dirty pages and closes the underlying file.
func (t *Tree) Close() error {
	if err := t.bpm.FlushAllPages(); err != nil {
		return err
	}
	return t.disk.Close()
}
