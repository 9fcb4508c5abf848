package bptree

import "errors"

// ErrIndexEntryNotFound is returned by DeleteEntry when the key is absent.
var ErrIndexEntryNotFound = errors.New("bptree: index entry not found")
