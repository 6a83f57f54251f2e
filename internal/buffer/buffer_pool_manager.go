package buffer

import (
	"errors"
	"fmt"
	"sync"

	"ridgedb/internal/disk"
)

// ErrPoolExhausted is returned by FetchPage/NewPage when every frame is
// pinned and no victim can be produced; callers must release pins and
// retry.
var ErrPoolExhausted = errors.New("buffer pool: no free frame available")

// ErrPageNotFound is returned by operations that require a page to already
// be resident (FlushPage) when it is not.
var ErrPageNotFound = errors.New("buffer pool: page not resident")

// ErrPagePinned names the case of a resident page with a non-zero pin
// count. DeletePage reports that case as (false, nil) and does not return
// this error.
var ErrPagePinned = errors.New("buffer pool: page is pinned")

type frame struct {
	page *Page
}

// BufferPoolManager mediates all access to pages: a fixed frame pool, a
// page table, a free-frame list, and an LRU replacer, all serialized by a
// single latch. Grounded on helin/buffer.BufferPool, stripped of its
// WAL/free-list-page/log-manager hooks (out of scope here).
type BufferPoolManager struct {
	mu          sync.Mutex
	poolSize    int
	pageSize    int
	frames      []*frame
	pageTable   map[int64]FrameID // page_id -> frame_id
	freeList    []FrameID
	replacer    Replacer
	diskManager disk.Manager
}

func NewBufferPoolManager(poolSize, pageSize int, dm disk.Manager) *BufferPoolManager {
	free := make([]FrameID, poolSize)
	for i := range free {
		free[i] = FrameID(i)
	}
	return &BufferPoolManager{
		poolSize:    poolSize,
		pageSize:    pageSize,
		frames:      make([]*frame, poolSize),
		pageTable:   make(map[int64]FrameID),
		freeList:    free,
		replacer:    NewLRUReplacer(poolSize),
		diskManager: dm,
	}
}

// FetchPage returns the requested page, pinned once. If the page is not
// resident, a frame is obtained (free list, else replacer victim,
// flushing it first if dirty) and the page is read from disk into it.
func (b *BufferPoolManager) FetchPage(pageID int64) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[pageID]; ok {
		b.pinLocked(frameID)
		return b.frames[frameID].page, nil
	}

	frameID, err := b.allocateFrameLocked()
	if err != nil {
		return nil, err
	}

	f := &frame{page: newPage(pageID, b.pageSize)}
	if err := b.diskManager.ReadPage(pageID, f.page.data); err != nil {
		b.freeList = append(b.freeList, frameID)
		return nil, err
	}

	b.frames[frameID] = f
	b.pageTable[pageID] = frameID
	f.page.pinCount = 1
	f.page.dirty = false
	b.replacer.Pin(frameID)
	return f.page, nil
}

// NewPage allocates a fresh page on disk, installs it pinned in a frame,
// and returns it zeroed.
func (b *BufferPoolManager) NewPage() (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, err := b.allocateFrameLocked()
	if err != nil {
		return nil, err
	}

	pageID := b.diskManager.AllocatePage()
	f := &frame{page: newPage(pageID, b.pageSize)}
	b.frames[frameID] = f
	b.pageTable[pageID] = frameID
	f.page.pinCount = 1
	b.replacer.Pin(frameID)
	return f.page, nil
}

// UnpinPage decrements the page's pin count, folding isDirty into the
// frame's dirty bit. It returns an error if the page is not resident or
// already has a zero pin count.
func (b *BufferPoolManager) UnpinPage(pageID int64, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return ErrPageNotFound
	}
	p := b.frames[frameID].page
	if isDirty {
		p.dirty = true
	}
	if p.pinCount <= 0 {
		return fmt.Errorf("buffer pool: unpin called on page %d with pin count %d", pageID, p.pinCount)
	}
	p.pinCount--
	if p.pinCount == 0 {
		b.replacer.Unpin(frameID)
	}
	return nil
}

// FlushPage writes the page through to disk unconditionally and clears its
// dirty bit.
func (b *BufferPoolManager) FlushPage(pageID int64) error {
	b.mu.Lock()
	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.mu.Unlock()
		return ErrPageNotFound
	}
	p := b.frames[frameID].page
	b.mu.Unlock()

	if err := b.diskManager.WritePage(pageID, p.data); err != nil {
		return err
	}
	b.mu.Lock()
	p.dirty = false
	b.mu.Unlock()
	return nil
}

// FlushAllPages writes every currently-mapped page to disk. It observes a
// consistent snapshot of the page table at the time of the call, not of
// in-flight writers.
func (b *BufferPoolManager) FlushAllPages() error {
	b.mu.Lock()
	pageIDs := make([]int64, 0, len(b.pageTable))
	for pid := range b.pageTable {
		pageIDs = append(pageIDs, pid)
	}
	b.mu.Unlock()

	for _, pid := range pageIDs {
		if err := b.FlushPage(pid); err != nil && err != ErrPageNotFound {
			return err
		}
	}
	return nil
}

// DeletePage removes the page from the buffer pool and deallocates it on
// disk. It returns (true, nil) if the page was absent to begin with (a
// no-op success), (false, nil) if the page is resident and pinned, or
// (true, nil) after a successful delete.
func (b *BufferPoolManager) DeletePage(pageID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return true, nil
	}

	p := b.frames[frameID].page
	if p.pinCount != 0 {
		return false, nil
	}

	b.replacer.Pin(frameID)
	delete(b.pageTable, pageID)
	b.frames[frameID] = nil
	b.freeList = append(b.freeList, frameID)
	b.diskManager.DeallocatePage(pageID)
	return true, nil
}

// allocateFrameLocked obtains a frame for a brand-new mapping: pop the free
// list, else ask the replacer for a victim (writing it back first if
// dirty). Caller must hold b.mu.
func (b *BufferPoolManager) allocateFrameLocked() (FrameID, error) {
	if n := len(b.freeList); n > 0 {
		frameID := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return frameID, nil
	}

	victimID, ok := b.replacer.Victim()
	if !ok {
		return 0, ErrPoolExhausted
	}

	victim := b.frames[victimID]
	if victim.page.pinCount != 0 {
		// Invariant (a): a pinned frame is never in the replacer.
		panic(fmt.Sprintf("buffer pool: replacer returned pinned frame %d (page %d)", victimID, victim.page.pageID))
	}

	if victim.page.dirty {
		if err := b.diskManager.WritePage(victim.page.pageID, victim.page.data); err != nil {
			// leave victim's mapping untouched; replacer no longer holds
			// it, so put the frame back on the free list is unsafe (it
			// still holds the old page's data and mapping) - simplest
			// safe recovery is to re-offer it to the replacer.
			b.replacer.Unpin(victimID)
			return 0, err
		}
		victim.page.dirty = false
	}

	delete(b.pageTable, victim.page.pageID)
	victim.page.clear()
	return victimID, nil
}

// pinLocked increments the pin count of an already-resident page and
// removes its frame from the replacer. Caller must hold b.mu.
func (b *BufferPoolManager) pinLocked(frameID FrameID) {
	f := b.frames[frameID]
	f.page.pinCount++
	b.replacer.Pin(frameID)
}

// PoolSize returns the number of frames the manager holds.
func (b *BufferPoolManager) PoolSize() int { return b.poolSize }
