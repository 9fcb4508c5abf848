package heap

import "github.com/gojodb/txcore/core/storage"

// Rid identifies a single record: the page it lives on and its slot index
// within that page's slot array.
type Rid struct {
	PageNo storage.PageID
	SlotNo uint32
}

// InvalidRid is returned where no record is applicable.
var InvalidRid = Rid{PageNo: storage.InvalidPageID, SlotNo: 0}

func (r Rid) IsValid() bool { return r.PageNo != storage.InvalidPageID }

// Less orders rids in (page_no, slot_no) lexicographic order, the order a
// full heap scan yields them in (spec §4.1).
func (r Rid) Less(other Rid) bool {
	if r.PageNo != other.PageNo {
		return r.PageNo < other.PageNo
	}
	return r.SlotNo < other.SlotNo
}
