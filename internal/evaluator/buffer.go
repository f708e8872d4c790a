package evaluator

import "fmt"

// BufferKind declares which memory space a buffer lives in. Backends
// whose buffers are device-resident declare KindDevice so the driver
// never touches the bytes directly.
type BufferKind int

const (
	KindHost BufferKind = iota
	KindDevice
)

func (k BufferKind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindDevice:
		return "device"
	default:
		return fmt.Sprintf("BufferKind(%d)", int(k))
	}
}

// Buffer is raw contiguous byte storage for one batch, allocated by a
// constructor and exclusively owned by the caller from then on. Release
// frees it deterministically; a released buffer is poisoned and every
// further use fails with ErrBufferReleased, so double releases and
// use-after-release are detectable instead of undefined.
type Buffer struct {
	data     []byte
	kind     BufferKind
	released bool
}

// newBuffer allocates size bytes in the given memory space. Only
// constructors call it; the size rules live with the backend.
func newBuffer(size int, kind BufferKind) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return &Buffer{data: make([]byte, size), kind: kind}, nil
}

// Kind reports the memory space the buffer was allocated in.
func (b *Buffer) Kind() BufferKind { return b.kind }

// Cap reports the buffer's capacity in bytes, or 0 after release.
func (b *Buffer) Cap() int {
	if b.released {
		return 0
	}
	return len(b.data)
}

// Released reports whether the buffer has been released.
func (b *Buffer) Released() bool { return b.released }

// Bytes exposes the underlying storage. The caller must respect the
// ownership contract: read-only while an Evaluate call holds it as
// input, write-only as an output target.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.released {
		return nil, ErrBufferReleased
	}
	return b.data, nil
}

// Release frees the buffer. Releasing twice returns ErrBufferReleased
// rather than corrupting anything.
func (b *Buffer) Release() error {
	if b.released {
		return ErrBufferReleased
	}
	b.released = true
	b.data = nil
	return nil
}
