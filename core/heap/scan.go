package heap

import "github.com/gojodb/txcore/core/storage"

// Scan is a cursor over every occupied slot in the file, yielding rids in
// (page_no, slot_no) lexicographic order by skipping holes via each page's
// occupancy bitmap (spec §4.1).
type Scan struct {
	f       *File
	pageNo  storage.PageID
	slotNo  int
	started bool
}

// NewScan starts a full-file scan positioned before the first record.
func (f *File) NewScan() *Scan {
	return &Scan{f: f, pageNo: 1, slotNo: 0}
}

// Next advances the cursor and returns the next occupied rid, or false
// when the scan is exhausted.
func (s *Scan) Next() (Rid, bool, error) {
	numPages := storage.PageID(s.f.header.NumPages)
	for s.pageNo < numPages {
		page, err := s.f.bpm.FetchPage(s.pageNo)
		if err != nil {
			return Rid{}, false, err
		}
		page.RLock()
		v := s.f.view(page)
		slot := v.firstSetBitFrom(s.slotNo)
		page.RUnlock()
		s.f.bpm.UnpinPage(s.pageNo, false)

		if slot < 0 {
			s.pageNo++
			s.slotNo = 0
			continue
		}
		s.slotNo = slot + 1
		return Rid{PageNo: s.pageNo, SlotNo: uint32(slot)}, true, nil
	}
	return Rid{}, false, nil
}
