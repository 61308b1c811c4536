package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"
)

// Segment is a mapped snapshot segment. The same type backs both sides:
// the daemon creates segments, clients open existing ones.
type Segment struct {
	file  *os.File
	mem   []byte
	path  string
	base  unsafe.Pointer
	cells []byte // the cell area, aliasing mem[offCells:]
}

// DefaultDir returns where segment files live: /dev/shm when present
// so the backing pages never touch disk, otherwise the OS temp dir.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// SegmentPath returns the segment file path for a session ID.
func SegmentPath(dir, sessionID string) string {
	return filepath.Join(dir, "driftterm-"+sessionID+".grid")
}

// Create makes a new segment file at path, sized and initialized for
// writing. It fails if the file already exists.
func Create(path string) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}
	if err := file.Truncate(SegmentSize); err != nil {
		cleanup()
		return nil, fmt.Errorf("size segment %s: %w", path, err)
	}
	mem, err := mmapFile(file, SegmentSize)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	s := newSegment(file, mem, path)
	copy(s.mem[offMagic:], Magic)
	atomic.StoreUint32(s.u32(offVersion), Version)
	atomic.StoreUint64(s.u64(offSequence), 0)
	atomic.StoreUint64(s.u64(offGeneration), 0)
	return s, nil
}

// Open maps an existing segment file and validates its header.
func Open(path string) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat segment %s: %w", path, err)
	}
	if info.Size() != SegmentSize {
		file.Close()
		return nil, fmt.Errorf("segment %s: unexpected size %d, want %d", path, info.Size(), SegmentSize)
	}
	mem, err := mmapFile(file, SegmentSize)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	s := newSegment(file, mem, path)
	if string(s.mem[offMagic:offMagic+len(Magic)]) != Magic {
		s.Close()
		return nil, fmt.Errorf("segment %s: bad magic", path)
	}
	if v := atomic.LoadUint32(s.u32(offVersion)); v != Version {
		s.Close()
		return nil, fmt.Errorf("segment %s: version %d, want %d", path, v, Version)
	}
	return s, nil
}

func newSegment(file *os.File, mem []byte, path string) *Segment {
	return &Segment{
		file:  file,
		mem:   mem,
		path:  path,
		base:  unsafe.Pointer(&mem[0]),
		cells: mem[offCells:],
	}
}

// Path returns the segment's backing file path.
func (s *Segment) Path() string { return s.path }

// Close unmaps the segment and closes the backing file. The file is
// left in place so other mappers keep working; Unlink removes it.
func (s *Segment) Close() error {
	var first error
	if s.mem != nil {
		if err := munmap(s.mem); err != nil {
			first = err
		}
		s.mem, s.cells, s.base = nil, nil, nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && first == nil {
			first = err
		}
		s.file = nil
	}
	return first
}

// Unlink removes the backing file.
func (s *Segment) Unlink() error {
	return os.Remove(s.path)
}

// u32 and u64 return addressable header words for atomic access.
// Offsets are 4- and 8-byte aligned by the layout.
func (s *Segment) u32(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(s.base) + off))
}

func (s *Segment) u64(off uintptr) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(s.base) + off))
}

// Sequence returns the current seqlock counter.
func (s *Segment) Sequence() uint64 {
	return atomic.LoadUint64(s.u64(offSequence))
}

// Generation returns the current resize generation.
func (s *Segment) Generation() uint64 {
	return atomic.LoadUint64(s.u64(offGeneration))
}
