package common

import "fmt"

// Key is the ordering contract the B+ tree requires of whatever is stored in
// its nodes. Modeled on helin/common.Key so node code never depends on a
// concrete key representation.
type Key interface {
	Less(than Key) bool
	Equal(than Key) bool
	fmt.Stringer
}

// Int64Key is the default concrete key type: a fixed-width signed integer,
// which is what every node layout in internal/storage/bptree serializes.
type Int64Key int64

func (k Int64Key) Less(than Key) bool {
	return k < than.(Int64Key)
}

func (k Int64Key) Equal(than Key) bool {
	o, ok := than.(Int64Key)
	return ok && k == o
}

func (k Int64Key) String() string {
	return fmt.Sprintf("%d", int64(k))
}

// RID (record identifier) is the value stored in leaf slots: the page and
// in-page slot of the tuple the key points at. Mirrors helin's
// SlotPointer/structures.Rid pair.
type RID struct {
	PageID  int64
	SlotIdx int16
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotIdx)
}
