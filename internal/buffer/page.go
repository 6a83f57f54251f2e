package buffer

import "sync"

// FrameID indexes into the buffer pool manager's fixed frame array.
type FrameID int

// Page is an in-memory frame's contents plus the metadata the BPM and its
// callers need: a page latch (orthogonal to the pin count), the pin count
// itself, and a dirty flag. Modeled on helin/disk/pages.RawPage.
type Page struct {
	latch    sync.RWMutex
	pageID   int64
	pinCount int
	dirty    bool
	data     []byte
}

func newPage(pageID int64, pageSize int) *Page {
	return &Page{
		pageID: pageID,
		data:   make([]byte, pageSize),
	}
}

// Data returns the page's raw byte buffer. Callers must hold the page's
// latch (via WLatch for mutation, RLatch for reads) before touching it.
func (p *Page) Data() []byte { return p.data }

func (p *Page) PageID() int64 { return p.pageID }

func (p *Page) PinCount() int { return p.pinCount }

func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) SetDirty() { p.dirty = true }

func (p *Page) clear() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.dirty = false
}

func (p *Page) WLatch()   { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }
func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
