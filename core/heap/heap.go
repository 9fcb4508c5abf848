// Package heap implements the paged, slotted record store: a file header
// page tracking the freelist of non-full pages, and data pages each
// holding a bitmap of occupied slots followed by the fixed-size slot
// array itself (spec §4.1, §6).
package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gojodb/txcore/core/storage"
	"go.uber.org/zap"
)

const dataPageHeaderSize = 8 // num_records u32 + next_free_page u32

// fileHeader is the logical content of page 0, stored after the shared
// storage.Preamble.
type fileHeader struct {
	RecordSize    uint32
	NumPages      uint32
	SlotsPerPage  uint32
	BitmapSize    uint32
	FirstFreePage storage.PageID
}

const headerPayloadOffset = 12 // size of storage.Preamble

// File is one heap file: all records of one table, fixed-size, paged.
type File struct {
	disk *storage.DiskManager
	bpm  *storage.BufferPoolManager
	log  *zap.SugaredLogger

	mu     sync.Mutex // guards the in-memory mirror of fileHeader
	header fileHeader
}

// Create makes a new, empty heap file at path for records of recordSize
// bytes, with pageSize-byte pages and a buffer pool of poolSize frames.
func Create(path string, pageSize, recordSize, poolSize int, log *zap.SugaredLogger) (*File, error) {
	disk := storage.NewDiskManager(path, pageSize)
	created, err := disk.OpenOrCreate()
	if err != nil {
		return nil, err
	}
	if !created {
		disk.Close()
		return nil, fmt.Errorf("heap: %s already exists", path)
	}
	slotsPerPage, bitmapSize := layout(pageSize, recordSize)
	if slotsPerPage == 0 {
		disk.Close()
		return nil, fmt.Errorf("heap: record size %d too large for page size %d", recordSize, pageSize)
	}
	f := &File{
		disk: disk,
		bpm:  storage.NewBufferPoolManager(poolSize, disk, log),
		log:  log,
		header: fileHeader{
			RecordSize:    uint32(recordSize),
			NumPages:      1,
			SlotsPerPage:  uint32(slotsPerPage),
			BitmapSize:    uint32(bitmapSize),
			FirstFreePage: storage.InvalidPageID,
		},
	}
	if err := f.flushHeaderLocked(); err != nil {
		disk.Close()
		return nil, err
	}
	return f, nil
}

// Open opens an existing heap file.
func Open(path string, pageSize, poolSize int, log *zap.SugaredLogger) (*File, error) {
	disk := storage.NewDiskManager(path, pageSize)
	created, err := disk.OpenOrCreate()
	if err != nil {
		return nil, err
	}
	if created {
		disk.Close()
		return nil, fmt.Errorf("heap: %s did not exist", path)
	}
	raw, err := disk.ReadHeaderPage()
	if err != nil {
		disk.Close()
		return nil, err
	}
	var hdr fileHeader
	if err := binary.Read(bytes.NewReader(raw[headerPayloadOffset:]), binary.BigEndian, &hdr); err != nil {
		disk.Close()
		return nil, fmt.Errorf("heap: reading header: %w", err)
	}
	return &File{
		disk:   disk,
		bpm:    storage.NewBufferPoolManager(poolSize, disk, log),
		log:    log,
		header: hdr,
	}, nil
}

// layout computes how many fixed-size slots fit on one data page alongside
// their occupancy bitmap, and the bitmap's byte size. The last four bytes
// of every data page hold the storage layer's CRC32 checksum and are not
// available for slots.
func layout(pageSize, recordSize int) (slotsPerPage, bitmapBytes int) {
	usable := pageSize - 4
	for n := (usable - dataPageHeaderSize) * 8 / (8*recordSize + 1); n > 0; n-- {
		bm := (n + 7) / 8
		if dataPageHeaderSize+bm+n*recordSize <= usable {
			return n, bm
		}
	}
	return 0, 0
}

func (f *File) flushHeaderLocked() error {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, headerPayloadOffset)) // preamble written by DiskManager.OpenOrCreate
	if err := binary.Write(buf, binary.BigEndian, f.header); err != nil {
		return err
	}
	page := make([]byte, f.disk.PageSize())
	copy(page, buf.Bytes())
	pre := make([]byte, headerPayloadOffset)
	existing, err := f.disk.ReadHeaderPage()
	if err == nil {
		copy(pre, existing[:headerPayloadOffset])
		copy(page[:headerPayloadOffset], pre)
	}
	return f.disk.WriteHeaderPage(page)
}

func dataPageOffsets(slotsPerPage, recordSize int) (bitmapOff, slotsOff int) {
	return dataPageHeaderSize, dataPageHeaderSize + (slotsPerPage+7)/8
}

func getBit(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

func setBit(bitmap []byte, i int, v bool) {
	if v {
		bitmap[i/8] |= 1 << uint(i%8)
	} else {
		bitmap[i/8] &^= 1 << uint(i%8)
	}
}

// dataPageView is a decoded view over a data page's fixed header + bitmap,
// backed directly by the page's byte slice (mutations write through).
type dataPageView struct {
	data         []byte
	slotsPerPage int
	recordSize   int
	bitmapOff    int
	slotsOff     int
}

func (f *File) view(page *storage.Page) dataPageView {
	bOff, sOff := dataPageOffsets(int(f.header.SlotsPerPage), int(f.header.RecordSize))
	return dataPageView{
		data:         page.GetData(),
		slotsPerPage: int(f.header.SlotsPerPage),
		recordSize:   int(f.header.RecordSize),
		bitmapOff:    bOff,
		slotsOff:     sOff,
	}
}

func (v dataPageView) numRecords() uint32      { return binary.BigEndian.Uint32(v.data[0:4]) }
func (v dataPageView) setNumRecords(n uint32)  { binary.BigEndian.PutUint32(v.data[0:4], n) }
func (v dataPageView) nextFree() storage.PageID {
	return storage.PageID(binary.BigEndian.Uint32(v.data[4:8]))
}
func (v dataPageView) setNextFree(p storage.PageID) {
	binary.BigEndian.PutUint32(v.data[4:8], uint32(p))
}
func (v dataPageView) bitmap() []byte { return v.data[v.bitmapOff:v.slotsOff] }
func (v dataPageView) slot(i int) []byte {
	off := v.slotsOff + i*v.recordSize
	return v.data[off : off+v.recordSize]
}

func (v dataPageView) firstClearBit() int {
	bm := v.bitmap()
	for i := 0; i < v.slotsPerPage; i++ {
		if !getBit(bm, i) {
			return i
		}
	}
	return -1
}

func (v dataPageView) firstSetBitFrom(start int) int {
	bm := v.bitmap()
	for i := start; i < v.slotsPerPage; i++ {
		if getBit(bm, i) {
			return i
		}
	}
	return -1
}

// Get returns a copy of the record at rid.
func (f *File) Get(rid Rid) ([]byte, error) {
	if err := f.checkRid(rid); err != nil {
		return nil, err
	}
	page, err := f.bpm.FetchPage(rid.PageNo)
	if err != nil {
		return nil, err
	}
	defer f.bpm.UnpinPage(rid.PageNo, false)
	page.RLock()
	defer page.RUnlock()
	v := f.view(page)
	if !getBit(v.bitmap(), int(rid.SlotNo)) {
		return nil, ErrNotFound
	}
	buf := make([]byte, v.recordSize)
	copy(buf, v.slot(int(rid.SlotNo)))
	return buf, nil
}

// Insert places buf into the first free slot of the first free page
// (allocating a new page if the freelist is empty) and returns its rid.
func (f *File) Insert(buf []byte) (Rid, error) {
	if len(buf) != int(f.header.RecordSize) {
		return InvalidRid, fmt.Errorf("heap: record size %d != table record size %d", len(buf), f.header.RecordSize)
	}
	f.mu.Lock()
	pageNo := f.header.FirstFreePage
	f.mu.Unlock()

	var page *storage.Page
	var err error
	if pageNo == storage.InvalidPageID {
		page, pageNo, err = f.allocateDataPage()
		if err != nil {
			return InvalidRid, err
		}
	} else {
		page, err = f.bpm.FetchPage(pageNo)
		if err != nil {
			return InvalidRid, err
		}
	}
	defer f.bpm.UnpinPage(pageNo, true)

	page.Lock()
	defer page.Unlock()
	v := f.view(page)
	slot := v.firstClearBit()
	if slot < 0 {
		return InvalidRid, fmt.Errorf("heap: page %d reported free but has no clear bit", pageNo)
	}
	copy(v.slot(slot), buf)
	setBit(v.bitmap(), slot, true)
	v.setNumRecords(v.numRecords() + 1)
	page.SetDirty(true)

	if v.numRecords() == uint32(v.slotsPerPage) {
		if err := f.unlinkFromFreelist(pageNo, v); err != nil {
			return InvalidRid, err
		}
	}
	return Rid{PageNo: pageNo, SlotNo: uint32(slot)}, nil
}

// InsertAt places buf at a specific, currently-free rid. Used to undo a
// delete during transaction abort.
func (f *File) InsertAt(rid Rid, buf []byte) error {
	if len(buf) != int(f.header.RecordSize) {
		return fmt.Errorf("heap: record size %d != table record size %d", len(buf), f.header.RecordSize)
	}
	if err := f.checkRid(rid); err != nil {
		return err
	}
	page, err := f.bpm.FetchPage(rid.PageNo)
	if err != nil {
		return err
	}
	defer f.bpm.UnpinPage(rid.PageNo, true)
	page.Lock()
	defer page.Unlock()
	v := f.view(page)
	if getBit(v.bitmap(), int(rid.SlotNo)) {
		return ErrSlotOccupied
	}
	wasFree := v.numRecords() < uint32(v.slotsPerPage)
	copy(v.slot(int(rid.SlotNo)), buf)
	setBit(v.bitmap(), int(rid.SlotNo), true)
	v.setNumRecords(v.numRecords() + 1)
	page.SetDirty(true)
	if wasFree && v.numRecords() == uint32(v.slotsPerPage) {
		if err := f.unlinkFromFreelist(rid.PageNo, v); err != nil {
			return err
		}
	}
	return nil
}

// Delete clears the slot at rid, relinking the page onto the freelist head
// if it was previously full.
func (f *File) Delete(rid Rid) error {
	if err := f.checkRid(rid); err != nil {
		return err
	}
	page, err := f.bpm.FetchPage(rid.PageNo)
	if err != nil {
		return err
	}
	defer f.bpm.UnpinPage(rid.PageNo, true)
	page.Lock()
	defer page.Unlock()
	v := f.view(page)
	if !getBit(v.bitmap(), int(rid.SlotNo)) {
		return ErrNotFound
	}
	wasFull := v.numRecords() == uint32(v.slotsPerPage)
	setBit(v.bitmap(), int(rid.SlotNo), false)
	v.setNumRecords(v.numRecords() - 1)
	page.SetDirty(true)
	if wasFull {
		if err := f.linkToFreelist(rid.PageNo, v); err != nil {
			return err
		}
	}
	return nil
}

// Update overwrites the record at rid in place. The caller is responsible
// for any index maintenance (spec §4.1).
func (f *File) Update(rid Rid, buf []byte) error {
	if len(buf) != int(f.header.RecordSize) {
		return fmt.Errorf("heap: record size %d != table record size %d", len(buf), f.header.RecordSize)
	}
	if err := f.checkRid(rid); err != nil {
		return err
	}
	page, err := f.bpm.FetchPage(rid.PageNo)
	if err != nil {
		return err
	}
	defer f.bpm.UnpinPage(rid.PageNo, true)
	page.Lock()
	defer page.Unlock()
	v := f.view(page)
	if !getBit(v.bitmap(), int(rid.SlotNo)) {
		return ErrNotFound
	}
	copy(v.slot(int(rid.SlotNo)), buf)
	page.SetDirty(true)
	return nil
}

func (f *File) checkRid(rid Rid) error {
	if rid.PageNo == storage.InvalidPageID || uint64(rid.PageNo) >= f.disk.NumPages() {
		return ErrInvalidPage
	}
	if rid.SlotNo >= f.header.SlotsPerPage {
		return ErrInvalidSlot
	}
	return nil
}

func (f *File) allocateDataPage() (*storage.Page, storage.PageID, error) {
	page, pageID, err := f.bpm.NewPage()
	if err != nil {
		return nil, storage.InvalidPageID, err
	}
	page.Lock()
	v := f.view(page)
	v.setNumRecords(0)
	v.setNextFree(storage.InvalidPageID)
	page.Unlock()

	f.mu.Lock()
	f.header.NumPages++
	f.header.FirstFreePage = pageID
	err = f.flushHeaderLocked()
	f.mu.Unlock()
	if err != nil {
		return nil, storage.InvalidPageID, err
	}
	return page, pageID, nil
}

// linkToFreelist pushes pageNo onto the head of the freelist. Caller holds
// the page's latch; v reflects that page's current contents.
func (f *File) linkToFreelist(pageNo storage.PageID, v dataPageView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v.setNextFree(f.header.FirstFreePage)
	f.header.FirstFreePage = pageNo
	return f.flushHeaderLocked()
}

// unlinkFromFreelist removes pageNo from the freelist. A page filled by
// Insert is always the head, since Insert only takes pages from the head;
// a page filled by InsertAt may be anywhere in the list, in which case the
// list is walked to unlink it.
func (f *File) unlinkFromFreelist(pageNo storage.PageID, v dataPageView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.header.FirstFreePage != pageNo {
		// Not the head (e.g. InsertAt filled a page found by rid directly).
		// Walk the freelist to unlink it.
		return f.unlinkNonHeadLocked(pageNo)
	}
	f.header.FirstFreePage = v.nextFree()
	return f.flushHeaderLocked()
}

func (f *File) unlinkNonHeadLocked(target storage.PageID) error {
	prev := f.header.FirstFreePage
	for prev != storage.InvalidPageID {
		page, err := f.bpm.FetchPage(prev)
		if err != nil {
			return err
		}
		page.RLock()
		v := f.view(page)
		next := v.nextFree()
		page.RUnlock()
		f.bpm.UnpinPage(prev, false)
		if next == target {
			targetPage, err := f.bpm.FetchPage(target)
			if err != nil {
				return err
			}
			targetPage.RLock()
			targetNext := f.view(targetPage).nextFree()
			targetPage.RUnlock()
			f.bpm.UnpinPage(target, false)

			prevPage, err := f.bpm.FetchPage(prev)
			if err != nil {
				return err
			}
			prevPage.Lock()
			f.view(prevPage).setNextFree(targetNext)
			prevPage.SetDirty(true)
			prevPage.Unlock()
			f.bpm.UnpinPage(prev, true)
			return nil
		}
		prev = next
	}
	return nil
}

// Close flushes all dirty pages and closes the underlying file.
func (f *File) Close() error {
	if err := f.bpm.FlushAllPages(); err != nil {
		return err
	}
	return f.disk.Close()
}

// RecordSize returns the fixed record size for this file.
func (f *File) RecordSize() int { return int(f.header.RecordSize) }

// NumDataPages returns the number of data pages currently allocated. The
// header's NumPages counts the header page too, so it is one more.
func (f *File) NumDataPages() storage.PageID {
	return storage.PageID(f.header.NumPages - 1)
}
