package bptree

import (
	"fmt"

	"ridgedb/internal/buffer"
	"ridgedb/internal/common"
)

// Pager adapts a buffer.BufferPoolManager to the typed node fetch/create
// API the tree needs, determining internal-vs-leaf from the page's type
// byte on fetch. Grounded on helin/btree.BufferPoolPager, generalized to
// this spec's internal/leaf page layout.
type Pager struct {
	bpm             *buffer.BufferPoolManager
	internalMaxSize int
	leafMaxSize     int
}

func NewPager(bpm *buffer.BufferPoolManager, cfg common.Config) *Pager {
	return &Pager{
		bpm:             bpm,
		internalMaxSize: cfg.InternalMaxSize,
		leafMaxSize:     cfg.LeafMaxSize,
	}
}

func (pg *Pager) NewInternalPage(parentID int64) (*InternalPage, error) {
	p, err := pg.bpm.NewPage()
	if err != nil {
		return nil, err
	}
	return newInternalPage(p, p.PageID(), parentID, pg.internalMaxSize), nil
}

func (pg *Pager) NewLeafPage(parentID int64) (*LeafPage, error) {
	p, err := pg.bpm.NewPage()
	if err != nil {
		return nil, err
	}
	return newLeafPage(p, p.PageID(), parentID, pg.leafMaxSize), nil
}

// FetchNode fetches pageID and wraps it according to its stored page type.
func (pg *Pager) FetchNode(pageID int64) (Node, error) {
	p, err := pg.bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	switch pageType(p.Data()[offPageType]) {
	case pageTypeInternal:
		return wrapInternalPage(p), nil
	case pageTypeLeaf:
		return wrapLeafPage(p), nil
	default:
		pg.bpm.UnpinPage(pageID, false)
		return nil, fmt.Errorf("bptree: page %d has unknown page type", pageID)
	}
}

func (pg *Pager) FetchInternal(pageID int64) (*InternalPage, error) {
	n, err := pg.FetchNode(pageID)
	if err != nil {
		return nil, err
	}
	ip, ok := n.(*InternalPage)
	if !ok {
		pg.Unpin(pageID, false)
		return nil, fmt.Errorf("bptree: page %d is not an internal page", pageID)
	}
	return ip, nil
}

func (pg *Pager) FetchLeaf(pageID int64) (*LeafPage, error) {
	n, err := pg.FetchNode(pageID)
	if err != nil {
		return nil, err
	}
	lp, ok := n.(*LeafPage)
	if !ok {
		pg.Unpin(pageID, false)
		return nil, fmt.Errorf("bptree: page %d is not a leaf page", pageID)
	}
	return lp, nil
}

func (pg *Pager) Unpin(pageID int64, isDirty bool) error {
	return pg.bpm.UnpinPage(pageID, isDirty)
}

func (pg *Pager) DeletePage(pageID int64) (bool, error) {
	return pg.bpm.DeletePage(pageID)
}
