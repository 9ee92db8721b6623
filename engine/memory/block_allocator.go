// Package memory provides the fixed-size block allocators used by the engine
// core for high churn objects such as jobs.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/spaghettifunk/hzdclouds/engine/core"
)

var ErrBlockTooLarge = errors.New("requested size exceeds the allocator block size")

// Tracker receives a notification for every block handed out or given back.
type Tracker interface {
	TrackAlloc(size uint64)
	TrackFree(size uint64)
}

// freeLinkSize is the size of the link a free block needs to sit in the free list.
const freeLinkSize = unsafe.Sizeof(uintptr(0))

// BlockAllocator hands out blocks of one size class, holding one T each.
// Freed blocks go onto a free list and are reused before the heap is asked for
// more memory; nothing is ever returned to the heap. All operations are
// serialized by one lock.
type BlockAllocator[T any] struct {
	mu              sync.Mutex
	blockSize       uintptr
	free            []*T
	handedOut       map[*T]struct{}
	heapAllocations uint64
	live            uint64
	tracker         Tracker
}

// NewBlockAllocator creates an allocator with the given block size, clamped up
// to fit a T and the free list link.
func NewBlockAllocator[T any](blockSize uintptr) *BlockAllocator[T] {
	var zero T
	if size := unsafe.Sizeof(zero); blockSize < size {
		blockSize = size
	}
	if blockSize < freeLinkSize {
		blockSize = freeLinkSize
	}
	return &BlockAllocator[T]{
		blockSize: blockSize,
		handedOut: make(map[*T]struct{}),
	}
}

// SetTracker installs t to be notified of every allocation and free.
func (a *BlockAllocator[T]) SetTracker(t Tracker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracker = t
}

// Alloc returns a zeroed block able to hold size bytes.
func (a *BlockAllocator[T]) Alloc(size uintptr) (*T, error) {
	if size > a.blockSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBlockTooLarge, size, a.blockSize)
	}

	a.mu.Lock()
	var block *T
	if n := len(a.free); n > 0 {
		block = a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
	} else {
		block = new(T)
		a.heapAllocations++
	}
	a.handedOut[block] = struct{}{}
	a.live++
	tracker := a.tracker
	a.mu.Unlock()

	if tracker != nil {
		tracker.TrackAlloc(uint64(a.blockSize))
	}
	return block, nil
}

// Free clears the block and puts it back on the free list. Freeing a block
// twice, or one this allocator never handed out, panics.
func (a *BlockAllocator[T]) Free(block *T) {
	core.Assert(block != nil, "freeing a nil block")

	a.mu.Lock()
	if _, ok := a.handedOut[block]; !ok {
		a.mu.Unlock()
		core.Assert(false, "block %p is not live in this allocator", block)
	}
	delete(a.handedOut, block)
	var zero T
	*block = zero
	a.free = append(a.free, block)
	a.live--
	tracker := a.tracker
	a.mu.Unlock()

	if tracker != nil {
		tracker.TrackFree(uint64(a.blockSize))
	}
}

// New allocates a block sized for T. It cannot fail since the block size is
// never smaller than T.
func (a *BlockAllocator[T]) New() *T {
	var zero T
	block, err := a.Alloc(unsafe.Sizeof(zero))
	core.Assert(err == nil, "block allocator cannot hold its own type: %v", err)
	return block
}

// Delete is the counterpart of New.
func (a *BlockAllocator[T]) Delete(block *T) {
	a.Free(block)
}

func (a *BlockAllocator[T]) BlockSize() uintptr {
	return a.blockSize
}

// HeapAllocations is the number of blocks ever obtained from the heap.
func (a *BlockAllocator[T]) HeapAllocations() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heapAllocations
}

// Live is the number of blocks currently handed out.
func (a *BlockAllocator[T]) Live() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// FreeBlocks is the length of the free list.
func (a *BlockAllocator[T]) FreeBlocks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
