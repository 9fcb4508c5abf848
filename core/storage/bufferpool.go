package storage

import (
	"container/list"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// BufferPoolManager maps a fixed number of in-memory page frames onto a
// DiskManager's pages, with LRU eviction of unpinned frames. This is the
// one piece of genuinely shared infrastructure between the heap store and
// the B+ tree: both open their file through a DiskManager and fetch/unpin
// pages through a BufferPoolManager, grounded on the teacher's
// core/write_engine/memtable/bufferpoolmanager.go.
type BufferPoolManager struct {
	disk     *DiskManager
	poolSize int
	pageSize int

	mu        sync.Mutex
	pages     []*Page
	pageTable map[PageID]int
	lruList   *list.List
	lruMap    map[int]*list.Element

	log *zap.SugaredLogger
}

// NewBufferPoolManager builds a pool of poolSize frames over disk.
func NewBufferPoolManager(poolSize int, disk *DiskManager, log *zap.SugaredLogger) *BufferPoolManager {
	bpm := &BufferPoolManager{
		disk:      disk,
		poolSize:  poolSize,
		pageSize:  disk.PageSize(),
		pages:     make([]*Page, poolSize),
		pageTable: make(map[PageID]int),
		lruList:   list.New(),
		lruMap:    make(map[int]*list.Element),
		log:       log,
	}
	for i := range bpm.pages {
		bpm.pages[i] = NewPage(InvalidPageID, bpm.pageSize)
	}
	return bpm
}

// FetchPage pins and returns the page for pageID, loading it from disk
// (possibly evicting an LRU victim) if it is not already resident.
func (bpm *BufferPoolManager) FetchPage(pageID PageID) (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frame, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frame]
		page.Pin()
		if page.GetLruElement() != nil {
			bpm.lruList.MoveToFront(page.GetLruElement())
		}
		return page, nil
	}

	frame, err := bpm.victimFrameLocked()
	if err != nil {
		return nil, err
	}
	victim := bpm.pages[frame]
	if err := bpm.evictLocked(frame, victim); err != nil {
		return nil, err
	}

	victim.Reset()
	if err := bpm.disk.ReadPage(pageID, victim.GetData()); err != nil {
		return nil, fmt.Errorf("storage: fetching page %d: %w", pageID, err)
	}
	victim.SetPageID(pageID)
	victim.SetPinCount(1)
	victim.SetDirty(false)

	bpm.pageTable[pageID] = frame
	victim.SetLruElement(bpm.lruList.PushFront(frame))
	bpm.lruMap[frame] = victim.GetLruElement()
	return victim, nil
}

// NewPage allocates a fresh page on disk, pins it into a frame, and
// returns it dirty (the caller is expected to initialize its contents).
func (bpm *BufferPoolManager) NewPage() (*Page, PageID, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	pageID, err := bpm.disk.AllocatePage()
	if err != nil {
		return nil, InvalidPageID, err
	}

	frame, err := bpm.victimFrameLocked()
	if err != nil {
		return nil, InvalidPageID, err
	}
	victim := bpm.pages[frame]
	if err := bpm.evictLocked(frame, victim); err != nil {
		return nil, InvalidPageID, err
	}

	victim.Reset()
	victim.SetPageID(pageID)
	victim.SetPinCount(1)
	victim.SetDirty(true)

	bpm.pageTable[pageID] = frame
	victim.SetLruElement(bpm.lruList.PushFront(frame))
	bpm.lruMap[frame] = victim.GetLruElement()
	return victim, pageID, nil
}

// UnpinPage decrements a page's pin count, optionally marking it dirty.
func (bpm *BufferPoolManager) UnpinPage(pageID PageID, dirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	frame, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d", ErrPageNotFound, pageID)
	}
	page := bpm.pages[frame]
	page.Unpin()
	if dirty {
		page.SetDirty(true)
	}
	return nil
}

// FlushPage writes a resident dirty page back to disk.
func (bpm *BufferPoolManager) FlushPage(pageID PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	frame, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d", ErrPageNotFound, pageID)
	}
	return bpm.flushFrameLocked(frame)
}

// FlushAllPages writes every dirty resident page back to disk and syncs
// the underlying file.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	for frame, page := range bpm.pages {
		if page.GetPageID() != InvalidPageID && page.IsDirty() {
			if err := bpm.flushFrameLocked(frame); err != nil {
				return err
			}
		}
	}
	return bpm.disk.Sync()
}

func (bpm *BufferPoolManager) flushFrameLocked(frame int) error {
	page := bpm.pages[frame]
	if !page.IsDirty() {
		return nil
	}
	if err := bpm.disk.WritePage(page.GetPageID(), page.GetData()); err != nil {
		return err
	}
	page.SetDirty(false)
	return nil
}

// victimFrameLocked finds an empty frame, or else the least-recently-used
// unpinned frame. Caller must hold bpm.mu.
func (bpm *BufferPoolManager) victimFrameLocked() (int, error) {
	for i, p := range bpm.pages {
		if p.GetPageID() == InvalidPageID {
			return i, nil
		}
	}
	for e := bpm.lruList.Back(); e != nil; e = e.Prev() {
		frame := e.Value.(int)
		if bpm.pages[frame].GetPinCount() == 0 {
			return frame, nil
		}
	}
	if bpm.log != nil {
		bpm.log.Warnw("buffer pool exhausted", "pool_size", bpm.poolSize)
	}
	return -1, ErrBufferPoolFull
}

// evictLocked flushes and removes the victim's old identity from the pool's
// tracking structures. The frame is left ready for Reset + reassignment.
func (bpm *BufferPoolManager) evictLocked(frame int, victim *Page) error {
	if victim.GetPageID() == InvalidPageID {
		return nil
	}
	if victim.IsDirty() {
		if err := bpm.flushFrameLocked(frame); err != nil {
			return fmt.Errorf("storage: flushing victim page %d: %w", victim.GetPageID(), err)
		}
	}
	delete(bpm.pageTable, victim.GetPageID())
	if victim.GetLruElement() != nil {
		bpm.lruList.Remove(victim.GetLruElement())
		delete(bpm.lruMap, frame)
	}
	return nil
}

// PageSize returns the pool's fixed page size.
func (bpm *BufferPoolManager) PageSize() int { return bpm.pageSize }
