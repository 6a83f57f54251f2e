package bptree

import (
	"sort"

	"ridgedb/internal/buffer"
	"ridgedb/internal/common"
)

// LeafPage is a B+ tree leaf node: an ordered, unique-key array of (key,
// RID) slots plus a next_page_id link to the right sibling leaf,
// maintained in key order.
type LeafPage struct {
	p *buffer.Page
}

func newLeafPage(p *buffer.Page, pageID, parentID int64, maxSize int) *LeafPage {
	data := p.Data()
	data[offPageType] = byte(pageTypeLeaf)
	putPageID(data[offParentPage:], parentID)
	putInt16(data[offSize:], 0)
	putInt16(data[offMaxSize:], int16(maxSize))
	putPageID(data[offNextPage:], common.InvalidPageID)
	return &LeafPage{p: p}
}

func wrapLeafPage(p *buffer.Page) *LeafPage { return &LeafPage{p: p} }

func (n *LeafPage) IsLeaf() bool { return true }

func (n *LeafPage) PageID() int64 { return n.p.PageID() }

func (n *LeafPage) ParentPageID() int64 { return getPageID(n.p.Data()[offParentPage:]) }

func (n *LeafPage) SetParentPageID(id int64) {
	putPageID(n.p.Data()[offParentPage:], id)
	n.p.SetDirty()
}

func (n *LeafPage) Size() int { return int(getInt16(n.p.Data()[offSize:])) }

func (n *LeafPage) setSize(s int) {
	putInt16(n.p.Data()[offSize:], int16(s))
	n.p.SetDirty()
}

func (n *LeafPage) MaxSize() int { return int(getInt16(n.p.Data()[offMaxSize:])) }

func (n *LeafPage) MinSize() int { return (n.MaxSize() + 1) / 2 }

func (n *LeafPage) NextPageID() int64 { return getPageID(n.p.Data()[offNextPage:]) }

func (n *LeafPage) SetNextPageID(id int64) {
	putPageID(n.p.Data()[offNextPage:], id)
	n.p.SetDirty()
}

func (n *LeafPage) WLatch()   { n.p.WLatch() }
func (n *LeafPage) WUnlatch() { n.p.WUnlatch() }
func (n *LeafPage) RLatch()   { n.p.RLatch() }
func (n *LeafPage) RUnlatch() { n.p.RUnlatch() }

func (n *LeafPage) slotOffset(i int) int { return headerSize + i*leafSlot }

func (n *LeafPage) KeyAt(i int) common.Key {
	off := n.slotOffset(i)
	return decodeKey(n.p.Data()[off : off+keySize])
}

func (n *LeafPage) setKeyAt(i int, k common.Key) {
	off := n.slotOffset(i)
	encodeKey(n.p.Data()[off:off+keySize], k)
	n.p.SetDirty()
}

func (n *LeafPage) ValueAt(i int) common.RID {
	off := n.slotOffset(i) + keySize
	return decodeRID(n.p.Data()[off:])
}

func (n *LeafPage) setValueAt(i int, v common.RID) {
	off := n.slotOffset(i) + keySize
	encodeRID(n.p.Data()[off:], v)
	n.p.SetDirty()
}

// find returns the index of key if present, and whether it was found. If
// not found, index is the position key would be inserted at to keep the
// slot array sorted.
func (n *LeafPage) find(key common.Key) (index int, found bool) {
	size := n.Size()
	i := sort.Search(size, func(i int) bool {
		return !n.KeyAt(i).Less(key)
	})
	if i < size && n.KeyAt(i).Equal(key) {
		return i, true
	}
	return i, false
}

// Lookup returns the value for key and true, or (zero, false).
func (n *LeafPage) Lookup(key common.Key) (common.RID, bool) {
	idx, found := n.find(key)
	if !found {
		return common.RID{}, false
	}
	return n.ValueAt(idx), true
}

// Insert inserts (key, value) keeping the slot array sorted. Returns false
// without modifying the page if key is already present.
func (n *LeafPage) Insert(key common.Key, value common.RID) bool {
	idx, found := n.find(key)
	if found {
		return false
	}
	n.shiftRightFrom(idx)
	n.setKeyAt(idx, key)
	n.setValueAt(idx, value)
	n.setSize(n.Size() + 1)
	return true
}

func (n *LeafPage) shiftRightFrom(at int) {
	for i := n.Size(); i > at; i-- {
		n.setKeyAt(i, n.KeyAt(i-1))
		n.setValueAt(i, n.ValueAt(i-1))
	}
}

func (n *LeafPage) shiftLeftFrom(at int) {
	for i := at; i < n.Size()-1; i++ {
		n.setKeyAt(i, n.KeyAt(i+1))
		n.setValueAt(i, n.ValueAt(i+1))
	}
}

// RemoveAt deletes the slot at index i, shifting the remainder left.
func (n *LeafPage) RemoveAt(i int) {
	n.shiftLeftFrom(i)
	n.setSize(n.Size() - 1)
}

// Remove deletes key if present and reports whether it was found.
func (n *LeafPage) Remove(key common.Key) bool {
	idx, found := n.find(key)
	if !found {
		return false
	}
	n.RemoveAt(idx)
	return true
}

func (n *LeafPage) IsSafeForSplit() bool { return n.Size() < n.MaxSize()-1 }

func (n *LeafPage) IsSafeForMerge() bool { return n.Size() > n.MinSize() }

func (n *LeafPage) IsOverflow() bool { return n.Size() >= n.MaxSize() }

func (n *LeafPage) IsUnderflow() bool { return n.Size() < n.MinSize() }

// MoveHalfTo moves the upper half of this leaf's slots to right and relinks
// next_page_id so right sits between this leaf and its old successor.
func (n *LeafPage) MoveHalfTo(right *LeafPage) {
	total := n.Size()
	splitIdx := total / 2
	for i := splitIdx; i < total; i++ {
		right.setKeyAt(i-splitIdx, n.KeyAt(i))
		right.setValueAt(i-splitIdx, n.ValueAt(i))
	}
	right.setSize(total - splitIdx)
	n.setSize(splitIdx)

	right.SetNextPageID(n.NextPageID())
	n.SetNextPageID(right.PageID())
}

// MoveAllTo merges this leaf into left and relinks left's next_page_id past
// this (now-empty) leaf.
func (n *LeafPage) MoveAllTo(left *LeafPage) {
	base := left.Size()
	for i := 0; i < n.Size(); i++ {
		left.setKeyAt(base+i, n.KeyAt(i))
		left.setValueAt(base+i, n.ValueAt(i))
	}
	left.setSize(base + n.Size())
	left.SetNextPageID(n.NextPageID())
	n.setSize(0)
}

// MoveFirstToEndOf moves this leaf's first entry to the end of left.
// Returns the new first key of this leaf, which becomes the parent's new
// separator.
func (n *LeafPage) MoveFirstToEndOf(left *LeafPage) (newParentKey common.Key) {
	left.setKeyAt(left.Size(), n.KeyAt(0))
	left.setValueAt(left.Size(), n.ValueAt(0))
	left.setSize(left.Size() + 1)

	n.shiftLeftFrom(0)
	n.setSize(n.Size() - 1)
	return n.KeyAt(0)
}

// MoveLastToFrontOf moves this leaf's last entry to the front of right.
// Returns the moved key, which becomes the parent's new separator.
func (n *LeafPage) MoveLastToFrontOf(right *LeafPage) (newParentKey common.Key) {
	lastIdx := n.Size() - 1
	k, v := n.KeyAt(lastIdx), n.ValueAt(lastIdx)

	right.shiftRightFrom(0)
	right.setKeyAt(0, k)
	right.setValueAt(0, v)
	right.setSize(right.Size() + 1)

	n.setSize(n.Size() - 1)
	return k
}
