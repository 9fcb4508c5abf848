package storage

import "errors"

var (
	// ErrChecksumMismatch signals page corruption detected on read.
	ErrChecksumMismatch = errors.New("page checksum mismatch, data corruption suspected")
	// ErrBufferPoolFull is returned when every frame is pinned and none can
	// be evicted.
	ErrBufferPoolFull = errors.New("buffer pool is full and no pages can be evicted")
	// ErrPageNotFound is returned by operations that require a page to
	// already be resident in the pool (e.g. Unpin, Flush).
	ErrPageNotFound = errors.New("page not found in buffer pool")
)
