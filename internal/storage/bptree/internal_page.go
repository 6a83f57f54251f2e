package bptree

import (
	"sort"

	"ridgedb/internal/buffer"
	"ridgedb/internal/common"
)

// InternalPage is a B+ tree internal node: slot 0 holds a valid child
// pointer with an ignored placeholder key; slots 1..size-1 hold
// (key, child) pairs where every key in that child's subtree is >= key and
// < the next slot's key.
type InternalPage struct {
	p *buffer.Page
}

func newInternalPage(p *buffer.Page, pageID, parentID int64, maxSize int) *InternalPage {
	data := p.Data()
	data[offPageType] = byte(pageTypeInternal)
	putPageID(data[offParentPage:], parentID)
	putInt16(data[offSize:], 0)
	putInt16(data[offMaxSize:], int16(maxSize))
	putPageID(data[offNextPage:], common.InvalidPageID)
	return &InternalPage{p: p}
}

func wrapInternalPage(p *buffer.Page) *InternalPage { return &InternalPage{p: p} }

func (n *InternalPage) IsLeaf() bool { return false }

func (n *InternalPage) PageID() int64 { return n.p.PageID() }

func (n *InternalPage) ParentPageID() int64 { return getPageID(n.p.Data()[offParentPage:]) }

func (n *InternalPage) SetParentPageID(id int64) {
	putPageID(n.p.Data()[offParentPage:], id)
	n.p.SetDirty()
}

func (n *InternalPage) Size() int { return int(getInt16(n.p.Data()[offSize:])) }

func (n *InternalPage) setSize(s int) {
	putInt16(n.p.Data()[offSize:], int16(s))
	n.p.SetDirty()
}

func (n *InternalPage) MaxSize() int { return int(getInt16(n.p.Data()[offMaxSize:])) }

func (n *InternalPage) MinSize() int { return (n.MaxSize() + 1) / 2 }

func (n *InternalPage) WLatch()   { n.p.WLatch() }
func (n *InternalPage) WUnlatch() { n.p.WUnlatch() }
func (n *InternalPage) RLatch()   { n.p.RLatch() }
func (n *InternalPage) RUnlatch() { n.p.RUnlatch() }

func (n *InternalPage) slotOffset(i int) int { return headerSize + i*intSlot }

// KeyAt returns the separator key at slot i (i must be >= 1).
func (n *InternalPage) KeyAt(i int) common.Key {
	off := n.slotOffset(i)
	return decodeKey(n.p.Data()[off : off+keySize])
}

func (n *InternalPage) setKeyAt(i int, k common.Key) {
	off := n.slotOffset(i)
	encodeKey(n.p.Data()[off:off+keySize], k)
	n.p.SetDirty()
}

// ValueAt returns the child page id stored at slot i (i may be 0).
func (n *InternalPage) ValueAt(i int) int64 {
	off := n.slotOffset(i) + keySize
	return getPageID(n.p.Data()[off:])
}

func (n *InternalPage) setValueAt(i int, childID int64) {
	off := n.slotOffset(i) + keySize
	putPageID(n.p.Data()[off:], childID)
	n.p.SetDirty()
}

// Lookup binary-searches slots [1,size) for the first slot whose key is
// greater than target and returns the preceding child page id.
func (n *InternalPage) Lookup(target common.Key) int64 {
	size := n.Size()
	idx := sort.Search(size-1, func(i int) bool {
		return target.Less(n.KeyAt(i + 1))
	}) // idx in [0, size-1]: first i with key(i+1) > target, or size-1 if none
	return n.ValueAt(idx)
}

// ValueIndex returns the slot index holding childID, or -1.
func (n *InternalPage) ValueIndex(childID int64) int {
	for i := 0; i < n.Size(); i++ {
		if n.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// PopulateNewRoot sets this (freshly allocated) page up as a new root with
// two children: the old root and a newly split sibling.
func (n *InternalPage) PopulateNewRoot(oldValue int64, newKey common.Key, newValue int64) {
	n.setValueAt(0, oldValue)
	n.setKeyAt(1, newKey)
	n.setValueAt(1, newValue)
	n.setSize(2)
}

// InsertAfter shifts slots right and inserts (newKey, newValue) immediately
// after the slot currently holding oldValue.
func (n *InternalPage) InsertAfter(oldValue int64, newKey common.Key, newValue int64) {
	idx := n.ValueIndex(oldValue)
	n.shiftRightFrom(idx + 1)
	n.setKeyAt(idx+1, newKey)
	n.setValueAt(idx+1, newValue)
	n.setSize(n.Size() + 1)
}

func (n *InternalPage) shiftRightFrom(at int) {
	for i := n.Size(); i > at; i-- {
		n.setKeyAt(i, n.KeyAt(i-1))
		n.setValueAt(i, n.ValueAt(i-1))
	}
}

func (n *InternalPage) shiftLeftFrom(at int) {
	for i := at; i < n.Size()-1; i++ {
		n.setKeyAt(i, n.KeyAt(i+1))
		n.setValueAt(i, n.ValueAt(i+1))
	}
}

// RemoveAt deletes the slot at index i, shifting the remainder left.
func (n *InternalPage) RemoveAt(i int) {
	n.shiftLeftFrom(i)
	n.setSize(n.Size() - 1)
}

// IsSafeForSplit reports whether inserting one more entry cannot force a
// split (size < max_size - 1).
func (n *InternalPage) IsSafeForSplit() bool { return n.Size() < n.MaxSize()-1 }

// IsSafeForMerge reports whether removing one entry cannot underflow
// (size > min_size).
func (n *InternalPage) IsSafeForMerge() bool { return n.Size() > n.MinSize() }

func (n *InternalPage) IsOverflow() bool { return n.Size() >= n.MaxSize() }

func (n *InternalPage) IsUnderflow() bool { return n.Size() < n.MinSize() }

// adoptChild re-parents the child at childID to point at this page, via the
// supplied pager (needed because move operations relocate children across
// pages and every page caches its parent id).
func (n *InternalPage) adoptChild(pager *Pager, childID int64) error {
	child, err := pager.FetchNode(childID)
	if err != nil {
		return err
	}
	child.WLatch()
	setParent(child, n.PageID())
	pager.Unpin(childID, true)
	child.WUnlatch()
	return nil
}

// MoveHalfTo moves the upper half of this node's slots (including a
// separator) to right, and re-parents the moved children.
func (n *InternalPage) MoveHalfTo(right *InternalPage, pager *Pager) error {
	total := n.Size()
	splitIdx := total / 2
	for i := splitIdx; i < total; i++ {
		right.setKeyAt(i-splitIdx, n.KeyAt(i))
		right.setValueAt(i-splitIdx, n.ValueAt(i))
	}
	right.setSize(total - splitIdx)
	n.setSize(splitIdx)

	for i := 0; i < right.Size(); i++ {
		if err := right.adoptChild(pager, right.ValueAt(i)); err != nil {
			return err
		}
	}
	return nil
}

// MoveAllTo merges this node into left, using middleKey (the parent's
// separator) as the key for this node's first (slot-0) child.
func (n *InternalPage) MoveAllTo(left *InternalPage, middleKey common.Key, pager *Pager) error {
	base := left.Size()
	left.setKeyAt(base, middleKey)
	left.setValueAt(base, n.ValueAt(0))
	for i := 1; i < n.Size(); i++ {
		left.setKeyAt(base+i, n.KeyAt(i))
		left.setValueAt(base+i, n.ValueAt(i))
	}
	left.setSize(base + n.Size())

	for i := base; i < left.Size(); i++ {
		if err := left.adoptChild(pager, left.ValueAt(i)); err != nil {
			return err
		}
	}
	return nil
}

// MoveFirstToEndOf moves this node's first entry (its slot-0 child, paired
// with parentKey) to the end of left, used when redistributing from a right
// sibling. Returns the new separator key for the parent (this node's new
// first real key).
func (n *InternalPage) MoveFirstToEndOf(left *InternalPage, parentKey common.Key, pager *Pager) (newParentKey common.Key, err error) {
	base := left.Size()
	left.setKeyAt(base, parentKey)
	left.setValueAt(base, n.ValueAt(0))
	left.setSize(base + 1)
	if err := left.adoptChild(pager, n.ValueAt(0)); err != nil {
		return nil, err
	}

	newParentKey = n.KeyAt(1)
	n.shiftLeftFrom(0)
	n.setSize(n.Size() - 1)
	return newParentKey, nil
}

// MoveLastToFrontOf moves this node's last entry to the front of right,
// used when redistributing from a left sibling. Returns the new separator
// key for the parent.
func (n *InternalPage) MoveLastToFrontOf(right *InternalPage, parentKey common.Key, pager *Pager) (newParentKey common.Key, err error) {
	lastIdx := n.Size() - 1
	movedValue := n.ValueAt(lastIdx)
	newParentKey = n.KeyAt(lastIdx)

	right.shiftRightFrom(0)
	right.setValueAt(0, movedValue)
	right.setKeyAt(1, parentKey)
	right.setSize(right.Size() + 1)
	if err := right.adoptChild(pager, movedValue); err != nil {
		return nil, err
	}

	n.setSize(n.Size() - 1)
	return newParentKey, nil
}
