package bptree

import "ridgedb/internal/common"

// Iterator walks a leaf chain left to right via next_page_id links. It
// holds a read latch on at most one leaf at a time. Concurrent range
// scans are out of scope: an iterator observes whatever leaf state is
// current when it visits each page, with no isolation guarantee across
// the whole scan.
type Iterator struct {
	pager *Pager
	leaf  *LeafPage
	idx   int
}

// Begin returns an iterator positioned at the first entry of the
// left-most leaf.
func (t *BPlusTree) Begin() (*Iterator, error) {
	node, err := t.latchRoot(modeRead)
	if err != nil {
		return nil, err
	}
	cur := node
	for !cur.IsLeaf() {
		internal := cur.(*InternalPage)
		childID := internal.ValueAt(0)
		child, err := t.pager.FetchNode(childID)
		if err != nil {
			cur.RUnlatch()
			t.pager.Unpin(cur.PageID(), false)
			return nil, err
		}
		child.RLatch()
		cur.RUnlatch()
		t.pager.Unpin(cur.PageID(), false)
		cur = child
	}
	return &Iterator{pager: t.pager, leaf: cur.(*LeafPage), idx: 0}, nil
}

// BeginAt returns an iterator positioned at the first entry >= key.
func (t *BPlusTree) BeginAt(key common.Key) (*Iterator, error) {
	path, err := t.descend(key, modeRead)
	if err != nil {
		return nil, err
	}
	leaf := path[len(path)-1].(*LeafPage)
	idx, _ := leaf.find(key)
	it := &Iterator{pager: t.pager, leaf: leaf, idx: idx}
	if err := it.crossIfAtEnd(); err != nil {
		return nil, err
	}
	return it, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.leaf != nil && it.idx < it.leaf.Size()
}

// Key and Value return the entry at the iterator's current position. Only
// valid to call when Valid() is true.
func (it *Iterator) Key() common.Key    { return it.leaf.KeyAt(it.idx) }
func (it *Iterator) Value() common.RID  { return it.leaf.ValueAt(it.idx) }

// Next advances to the next entry, crossing into the right sibling leaf
// via next_page_id when the current leaf is exhausted. It closes the
// iterator (Valid() becomes false) once the chain is exhausted.
func (it *Iterator) Next() error {
	it.idx++
	return it.crossIfAtEnd()
}

// crossIfAtEnd walks the leaf chain forward via next_page_id while the
// iterator sits at or past the end of its current leaf, so that both a
// fresh BeginAt landing past its leaf's last entry and a Next run off the
// end land on the next leaf's first entry rather than reporting invalid.
func (it *Iterator) crossIfAtEnd() error {
	for it.leaf != nil && it.idx >= it.leaf.Size() {
		nextID := it.leaf.NextPageID()
		it.pager.Unpin(it.leaf.PageID(), false)
		it.leaf.RUnlatch()

		if nextID == common.InvalidPageID {
			it.leaf = nil
			return nil
		}
		next, err := it.pager.FetchLeaf(nextID)
		if err != nil {
			it.leaf = nil
			return err
		}
		next.RLatch()
		it.leaf = next
		it.idx = 0
	}
	return nil
}

// Close releases the iterator's held latch, if any. Safe to call more than
// once and on an already-exhausted iterator.
func (it *Iterator) Close() error {
	if it.leaf == nil {
		return nil
	}
	it.leaf.RUnlatch()
	err := it.pager.Unpin(it.leaf.PageID(), false)
	it.leaf = nil
	return err
}
