// Package storage provides the paged-file plumbing shared by the heap
// record store and the B+ tree index: fixed-size pages, a disk manager that
// maps page ids to file offsets, and an LRU buffer pool that pins/unpins
// pages on behalf of callers.
package storage

import (
	"container/list"
	"sync"

	commonutils "github.com/gojodb/txcore/internal/common_utils"
)

// PageID identifies a page within a single paged file. Page 0 is always the
// file header.
type PageID uint32

// InvalidPageID marks "no page" (e.g. an empty freelist, a leaf with no
// next sibling).
const InvalidPageID PageID = 0

// LSN is a log sequence number. The engine does not persist a WAL (spec
// §1 non-goal), but pages still carry an LSN field for parity with the
// teacher's page layout and for any future recovery work.
type LSN uint64

// InvalidLSN marks a page that has never been logged.
const InvalidLSN LSN = 0

// Page is an in-memory copy of one on-disk page plus the bookkeeping the
// buffer pool needs: pin count, dirty flag, LRU position, and a per-page
// latch that protects concurrent mutation of its contents.
type Page struct {
	id       PageID
	data     []byte
	pinCount uint32
	isDirty  bool
	lsn      LSN

	lruElement *list.Element

	// latch is a lightweight physical lock on this page's in-memory
	// contents, independent of the lock manager's logical record/gap
	// locks. B+ tree structural mutation additionally serializes through
	// the tree's single root latch (see core/bptree).
	latch sync.RWMutex
}

// NewPage allocates a zeroed page of the given size.
func NewPage(id PageID, size int) *Page {
	return &Page{id: id, data: make([]byte, size)}
}

// Reset clears a page frame so it can be reused for a different PageID.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.lsn = InvalidLSN
	p.lruElement = nil
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetData() []byte                  { return p.data }
func (p *Page) GetPageID() PageID                { return p.id }
func (p *Page) SetPageID(id PageID)               { p.id = id }
func (p *Page) IsDirty() bool                    { return p.isDirty }
func (p *Page) SetDirty(dirty bool)               { p.isDirty = dirty }
func (p *Page) Pin()                              { p.pinCount++ }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
func (p *Page) GetPinCount() uint32               { return p.pinCount }
func (p *Page) SetPinCount(n uint32)               { p.pinCount = n }
func (p *Page) GetLSN() LSN                       { return p.lsn }
func (p *Page) SetLSN(lsn LSN)                    { p.lsn = lsn }
func (p *Page) GetLruElement() *list.Element      { return p.lruElement }
func (p *Page) SetLruElement(e *list.Element)     { p.lruElement = e }

// RLock/RUnlock/Lock/Unlock implement the page-level physical latch. Index
// and heap code takes this latch while reading or mutating a page's bytes;
// it is released before the buffer pool's pin is dropped.
func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }

func (p *Page) Lock() {
	commonutils.PrintCaller("Page lock from", uint64(p.id), 2)
	p.latch.Lock()
}

func (p *Page) Unlock() {
	commonutils.PrintCaller("Page unlock from", uint64(p.id), 2)
	p.latch.Unlock()
}
