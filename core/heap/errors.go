package heap

import "errors"

var (
	ErrInvalidPage = errors.New("heap: invalid page number")
	ErrInvalidSlot = errors.New("heap: invalid slot number")
	ErrNotFound    = errors.New("heap: record not found")
	ErrSlotOccupied = errors.New("heap: slot already occupied")
)
