package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDiskManager_WriteReadPage_RoundTrips(t *testing.T) {
	dm := NewDiskManager(filepath.Join(t.TempDir(), "t.dat"), 64)
	created, err := dm.OpenOrCreate()
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() { _ = dm.Close() })

	pageID, err := dm.AllocatePage()
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0xAB}, dm.PageSize())
	require.NoError(t, dm.WritePage(pageID, payload))

	got := make([]byte, dm.PageSize())
	require.NoError(t, dm.ReadPage(pageID, got))
	require.Equal(t, payload[:dm.PageSize()-checksumSize], got[:dm.PageSize()-checksumSize])
}

func TestDiskManager_ReadPage_DetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	dm := NewDiskManager(path, 64)
	_, err := dm.OpenOrCreate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	pageID, err := dm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, dm.WritePage(pageID, bytes.Repeat([]byte{0x01}, dm.PageSize())))

	// Corrupt one payload byte directly through writeRaw, bypassing the
	// checksum recomputation WritePage would normally do.
	corrupt := bytes.Repeat([]byte{0x01}, dm.PageSize())
	corrupt[0] = 0x02
	require.NoError(t, dm.writeRaw(pageID, corrupt))

	err = dm.ReadPage(pageID, make([]byte, dm.PageSize()))
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDiskManager_OpenOrCreate_RejectsMismatchedPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	dm1 := NewDiskManager(path, 64)
	_, err := dm1.OpenOrCreate()
	require.NoError(t, err)
	require.NoError(t, dm1.Close())

	dm2 := NewDiskManager(path, 128)
	_, err = dm2.OpenOrCreate()
	require.Error(t, err)
}

func TestBufferPoolManager_FetchPage_PinsAndCachesResident(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	dm := NewDiskManager(filepath.Join(t.TempDir(), "t.dat"), 64)
	_, err = dm.OpenOrCreate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	bpm := NewBufferPoolManager(2, dm, logger.Sugar())

	page, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	copy(page.GetData(), []byte("hello"))
	require.NoError(t, bpm.UnpinPage(pageID, true))

	fetched, err := bpm.FetchPage(pageID)
	require.NoError(t, err)
	require.Same(t, page, fetched)
	require.Equal(t, byte('h'), fetched.GetData()[0])
	require.NoError(t, bpm.UnpinPage(pageID, false))
}

func TestBufferPoolManager_EvictsLRUWhenFull(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	dm := NewDiskManager(filepath.Join(t.TempDir(), "t.dat"), 64)
	_, err = dm.OpenOrCreate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	bpm := NewBufferPoolManager(1, dm, logger.Sugar())

	_, page1ID, err := bpm.NewPage()
	require.NoError(t, err)
	require.NoError(t, bpm.UnpinPage(page1ID, false))

	// Pool has only one frame; allocating a second page must evict the
	// first since it is unpinned.
	_, page2ID, err := bpm.NewPage()
	require.NoError(t, err)
	require.NoError(t, bpm.UnpinPage(page2ID, false))

	refetched, err := bpm.FetchPage(page1ID)
	require.NoError(t, err)
	require.Equal(t, page1ID, refetched.GetPageID())
	require.NoError(t, bpm.UnpinPage(page1ID, false))
}

func TestBufferPoolManager_FullPoolOfPinnedPages_ReturnsErrBufferPoolFull(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	dm := NewDiskManager(filepath.Join(t.TempDir(), "t.dat"), 64)
	_, err = dm.OpenOrCreate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	bpm := NewBufferPoolManager(1, dm, logger.Sugar())

	_, _, err = bpm.NewPage() // stays pinned
	require.NoError(t, err)

	_, _, err = bpm.NewPage()
	require.ErrorIs(t, err, ErrBufferPoolFull)
}

func TestPage_LockUnlock_SerializesAccess(t *testing.T) {
	p := NewPage(1, 64)
	p.Lock()
	p.SetDirty(true)
	p.Unlock()
	require.True(t, p.IsDirty())
}
