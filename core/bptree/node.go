package bptree

import (
	"encoding/binary"

	"github.com/gojodb/txcore/core/storage"
)

const (
	nodeHeaderSize = 15 // isLeaf(1) + numKeys(2) + parent(4) + prevLeaf(4) + nextLeaf(4)
	valueSize      = 8  // Rid{PageNo,SlotNo} for leaves, PageID (+ padding) for internals
)

// nodeView decodes a B+ tree node page in place: the page's byte slice is
// the single source of truth, and every accessor reads or writes straight
// through it (spec §4.2's node layout: is_leaf, num_keys, parent,
// prev_leaf, next_leaf, then a key array, then a value array).
type nodeView struct {
	data    []byte
	keyLen  int
	maxKeys int
}

func newNodeView(page *storage.Page, keyLen, maxKeys int) nodeView {
	return nodeView{data: page.GetData(), keyLen: keyLen, maxKeys: maxKeys}
}

func (v nodeView) isLeaf() bool     { return v.data[0] != 0 }
func (v nodeView) setLeaf(b bool) {
	if b {
		v.data[0] = 1
	} else {
		v.data[0] = 0
	}
}
func (v nodeView) numKeys() int { return int(binary.BigEndian.Uint16(v.data[1:3])) }
func (v nodeView) setNumKeys(n int) {
	binary.BigEndian.PutUint16(v.data[1:3], uint16(n))
}
func (v nodeView) parent() storage.PageID {
	return storage.PageID(binary.BigEndian.Uint32(v.data[3:7]))
}
func (v nodeView) setParent(p storage.PageID) {
	binary.BigEndian.PutUint32(v.data[3:7], uint32(p))
}
func (v nodeView) prevLeaf() storage.PageID {
	return storage.PageID(binary.BigEndian.Uint32(v.data[7:11]))
}
func (v nodeView) setPrevLeaf(p storage.PageID) {
	binary.BigEndian.PutUint32(v.data[7:11], uint32(p))
}
func (v nodeView) nextLeaf() storage.PageID {
	return storage.PageID(binary.BigEndian.Uint32(v.data[11:15]))
}
func (v nodeView) setNextLeaf(p storage.PageID) {
	binary.BigEndian.PutUint32(v.data[11:15], uint32(p))
}

func (v nodeView) keysOffset() int   { return nodeHeaderSize }
func (v nodeView) valuesOffset() int { return nodeHeaderSize + v.keyLen*v.maxKeys }

func (v nodeView) key(i int) []byte {
	off := v.keysOffset() + i*v.keyLen
	return v.data[off : off+v.keyLen]
}

func (v nodeView) setKey(i int, k []byte) {
	copy(v.key(i), k)
}

func (v nodeView) valueRaw(i int) []byte {
	off := v.valuesOffset() + i*valueSize
	return v.data[off : off+valueSize]
}

func (v nodeView) rid(i int) (pageNo, slotNo uint32) {
	b := v.valueRaw(i)
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8])
}

func (v nodeView) setRid(i int, pageNo, slotNo uint32) {
	b := v.valueRaw(i)
	binary.BigEndian.PutUint32(b[0:4], pageNo)
	binary.BigEndian.PutUint32(b[4:8], slotNo)
}

func (v nodeView) child(i int) storage.PageID {
	return storage.PageID(binary.BigEndian.Uint32(v.valueRaw(i)[0:4]))
}

func (v nodeView) setChild(i int, p storage.PageID) {
	binary.BigEndian.PutUint32(v.valueRaw(i)[0:4], uint32(p))
}

// insertSlot shifts keys/values [pos, numKeys) right by one to make room
// for a new entry at pos, then bumps numKeys.
func (v nodeView) insertSlot(pos int) {
	n := v.numKeys()
	for i := n; i > pos; i-- {
		copy(v.key(i), v.key(i-1))
		copy(v.valueRaw(i), v.valueRaw(i-1))
	}
	v.setNumKeys(n + 1)
}

// eraseSlot shifts keys/values (pos, numKeys) left by one, overwriting pos,
// then decrements numKeys.
func (v nodeView) eraseSlot(pos int) {
	n := v.numKeys()
	for i := pos; i < n-1; i++ {
		copy(v.key(i), v.key(i+1))
		copy(v.valueRaw(i), v.valueRaw(i+1))
	}
	v.setNumKeys(n - 1)
}
