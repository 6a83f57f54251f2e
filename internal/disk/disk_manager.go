// Package disk implements the byte-addressed block device the buffer pool
// manager reads and writes pages through. The spec this module implements
// treats the disk layer as an out-of-scope external collaborator, referred
// to only by interface; Manager and MemManager below are concrete
// implementations good enough to back real tests, grounded on
// helin/disk.Manager stripped of its WAL/checkpoint hooks (durability and
// recovery are explicit non-goals here).
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Manager is the interface the buffer pool manager depends on. Page 0 is
// reserved for the header page (the B+ tree index-name -> root-page-id
// mapping); allocation starts at page 1.
type Manager interface {
	ReadPage(pageID int64, buf []byte) error
	WritePage(pageID int64, buf []byte) error
	AllocatePage() int64
	DeallocatePage(pageID int64)
	Close() error
}

// FileManager is a single-file, fixed-page-size block device.
type FileManager struct {
	mu         sync.Mutex
	file       *os.File
	pageSize   int
	nextPageID int64
	freeList   []int64
}

var _ Manager = (*FileManager)(nil)

// NewFileManager opens (creating if absent) path as a page store. Page 0 is
// always reserved and zero-initialized on first creation.
func NewFileManager(path string, pageSize int) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	m := &FileManager{file: f, pageSize: pageSize}
	if stat.Size() == 0 {
		zero := make([]byte, pageSize)
		if _, err := f.WriteAt(zero, 0); err != nil {
			f.Close()
			return nil, err
		}
		m.nextPageID = 1
	} else {
		m.nextPageID = stat.Size() / int64(pageSize)
	}
	return m, nil
}

func (m *FileManager) ReadPage(pageID int64, buf []byte) error {
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk: buffer size %d does not match page size %d", len(buf), m.pageSize)
	}
	n, err := m.file.ReadAt(buf, pageID*int64(m.pageSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n != m.pageSize && !errors.Is(err, io.EOF) {
		return fmt.Errorf("disk: short read for page %d: got %d bytes", pageID, n)
	}
	return nil
}

func (m *FileManager) WritePage(pageID int64, buf []byte) error {
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk: buffer size %d does not match page size %d", len(buf), m.pageSize)
	}
	n, err := m.file.WriteAt(buf, pageID*int64(m.pageSize))
	if err != nil {
		return err
	}
	if n != m.pageSize {
		return fmt.Errorf("disk: short write for page %d: wrote %d bytes", pageID, n)
	}
	return nil
}

func (m *FileManager) AllocatePage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id
	}
	id := m.nextPageID
	m.nextPageID++
	return id
}

func (m *FileManager) DeallocatePage(pageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeList = append(m.freeList, pageID)
}

func (m *FileManager) Close() error {
	return m.file.Close()
}

// MemManager is an in-memory page store used by unit tests that do not need
// to survive a process restart, mirroring the role helin/btree/mem_pager.go
// plays for fast B+ tree tests.
type MemManager struct {
	mu         sync.Mutex
	pageSize   int
	pages      map[int64][]byte
	nextPageID int64
	freeList   []int64
}

var _ Manager = (*MemManager)(nil)

func NewMemManager(pageSize int) *MemManager {
	m := &MemManager{
		pageSize:   pageSize,
		pages:      map[int64][]byte{0: make([]byte, pageSize)},
		nextPageID: 1,
	}
	return m
}

func (m *MemManager) ReadPage(pageID int64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk: buffer size %d does not match page size %d", len(buf), m.pageSize)
	}
	if data, ok := m.pages[pageID]; ok {
		copy(buf, data)
		return nil
	}
	// unwritten pages read back as zeroes, same as a sparse file.
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (m *MemManager) WritePage(pageID int64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buf) != m.pageSize {
		return fmt.Errorf("disk: buffer size %d does not match page size %d", len(buf), m.pageSize)
	}
	cp := make([]byte, m.pageSize)
	copy(cp, buf)
	m.pages[pageID] = cp
	return nil
}

func (m *MemManager) AllocatePage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id
	}
	id := m.nextPageID
	m.nextPageID++
	return id
}

func (m *MemManager) DeallocatePage(pageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, pageID)
	m.freeList = append(m.freeList, pageID)
}

func (m *MemManager) Close() error {
	return nil
}
