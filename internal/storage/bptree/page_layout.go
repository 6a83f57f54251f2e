// Package bptree implements the on-disk B+ tree node layout and the
// tree-level index with latch-crabbing. Node byte layout is grounded on
// helin/disk/pages and helin/btree/persistent_nodes.go (a header struct
// followed by a slot array serialized directly into a buffer.Page's byte
// slice), generalized to an internal/leaf split with a slot-0 placeholder
// key.
package bptree

import (
	"encoding/binary"

	"ridgedb/internal/common"
)

type pageType uint8

const (
	pageTypeInvalid pageType = iota
	pageTypeInternal
	pageTypeLeaf
)

// header byte offsets, common to both internal and leaf pages.
const (
	offPageType   = 0 // 1 byte
	offParentPage = 8 // int64
	offSize       = 16
	offMaxSize    = 18
	offNextPage   = 20 // leaf only; unused (InvalidPageID) for internal
	headerSize    = 28
)

const (
	keySize   = 8  // Int64Key serialized big-endian
	ridSize   = 10 // RID.PageID (8) + RID.SlotIdx (2)
	intSlot   = keySize + 8 // internal slot: key + child page id
	leafSlot  = keySize + ridSize
)

func encodeKey(buf []byte, k common.Key) {
	binary.BigEndian.PutUint64(buf, uint64(k.(common.Int64Key)))
}

func decodeKey(buf []byte) common.Key {
	return common.Int64Key(binary.BigEndian.Uint64(buf))
}

func encodeRID(buf []byte, r common.RID) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.PageID))
	binary.BigEndian.PutUint16(buf[8:10], uint16(r.SlotIdx))
}

func decodeRID(buf []byte) common.RID {
	return common.RID{
		PageID:  int64(binary.BigEndian.Uint64(buf[0:8])),
		SlotIdx: int16(binary.BigEndian.Uint16(buf[8:10])),
	}
}

func putPageID(buf []byte, id int64) {
	binary.BigEndian.PutUint64(buf, uint64(id))
}

func getPageID(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

func putInt16(buf []byte, v int16) {
	binary.BigEndian.PutUint16(buf, uint16(v))
}

func getInt16(buf []byte) int16 {
	return int16(binary.BigEndian.Uint16(buf))
}
