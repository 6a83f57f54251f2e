package bptree

// Node is the common shape shared by InternalPage and LeafPage: identity,
// parent linkage, and latching. Tree-level code (b_plus_tree.go) uses this
// to crab down the tree without caring which concrete page type it holds,
// mirroring the role helin/btree.Node plays for helin's generic tree.
type Node interface {
	IsLeaf() bool
	PageID() int64
	ParentPageID() int64
	SetParentPageID(id int64)
	Size() int
	MaxSize() int
	MinSize() int

	WLatch()
	WUnlatch()
	RLatch()
	RUnlatch()
}

var (
	_ Node = (*InternalPage)(nil)
	_ Node = (*LeafPage)(nil)
)

func setParent(n Node, parentID int64) { n.SetParentPageID(parentID) }
