package bptree

import (
	"encoding/binary"
	"fmt"
	"sync"

	"ridgedb/internal/common"
)

// headerPage is page 0: a persistent name -> root-page-id map for every
// index in the store, guarded by the BPM page latch plus an in-process
// mutex for the convenience read/update API. Grounded on the small
// binary-map-on-a-reserved-page idiom in helin/disk/header_serializer.go,
// repurposed from helin's free-list header to an index-name header.
type headerPage struct {
	mu    sync.Mutex
	pager *Pager
}

const headerPageID int64 = 0

func newHeaderPage(pager *Pager) *headerPage {
	return &headerPage{pager: pager}
}

// GetRootPageID returns the root page id registered for name, or
// (InvalidPageID, error) if name is not registered.
func (h *headerPage) GetRootPageID(name string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.pager.bpm.FetchPage(headerPageID)
	if err != nil {
		return common.InvalidPageID, err
	}
	p.RLatch()
	m := decodeHeaderMap(p.Data())
	p.RUnlatch()
	h.pager.bpm.UnpinPage(headerPageID, false)

	id, ok := m[name]
	if !ok {
		return common.InvalidPageID, fmt.Errorf("bptree: no index registered with name %q", name)
	}
	return id, nil
}

// SetRootPageID records rootPageID as the root for name, overwriting any
// previous mapping.
func (h *headerPage) SetRootPageID(name string, rootPageID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.pager.bpm.FetchPage(headerPageID)
	if err != nil {
		return err
	}
	p.WLatch()
	m := decodeHeaderMap(p.Data())
	m[name] = rootPageID
	encodeHeaderMap(p.Data(), m)
	p.WUnlatch()
	return h.pager.bpm.UnpinPage(headerPageID, true)
}

// header page wire format: a 2-byte entry count followed by repeated
// {2-byte name length, name bytes, 8-byte root page id} entries.
func decodeHeaderMap(data []byte) map[string]int64 {
	m := make(map[string]int64)
	if len(data) < 2 {
		return m
	}
	count := binary.BigEndian.Uint16(data)
	off := 2
	for i := uint16(0); i < count; i++ {
		nameLen := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		name := string(data[off : off+nameLen])
		off += nameLen
		root := int64(binary.BigEndian.Uint64(data[off:]))
		off += 8
		m[name] = root
	}
	return m
}

func encodeHeaderMap(data []byte, m map[string]int64) {
	off := 2
	binary.BigEndian.PutUint16(data, uint16(len(m)))
	for name, root := range m {
		binary.BigEndian.PutUint16(data[off:], uint16(len(name)))
		off += 2
		copy(data[off:], name)
		off += len(name)
		binary.BigEndian.PutUint64(data[off:], uint64(root))
		off += 8
	}
}
