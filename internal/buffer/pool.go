// Package buffer pools the I/O buffers used to stream file contents
// through the bridge.
package buffer

import (
	"math/bits"
	"sync"
)

const (
	minClassShift = 12 // 4KB
	maxClassShift = 26 // 64MB
)

// Pool hands out byte slices from power-of-two size classes. Requests
// larger than the biggest class are allocated directly and never pooled.
type Pool struct {
	classes [maxClassShift - minClassShift + 1]sync.Pool
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	p := &Pool{}
	for i := range p.classes {
		size := 1 << (minClassShift + i)
		p.classes[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

// class returns the index of the smallest class holding size bytes, or -1.
func class(size int) int {
	if size <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(size - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// Get returns a slice of length size. Its contents are undefined.
func (p *Pool) Get(size int) []byte {
	c := class(size)
	if c < 0 {
		return make([]byte, size)
	}
	b := p.classes[c].Get().(*[]byte)
	return (*b)[:size]
}

// Put returns a slice obtained from Get. Slices of other capacities are
// dropped.
func (p *Pool) Put(buf []byte) {
	c := class(cap(buf))
	if c < 0 || cap(buf) != 1<<(minClassShift+c) {
		return
	}
	buf = buf[:cap(buf)]
	p.classes[c].Put(&buf)
}

var shared = NewPool()

// Get takes a buffer from the process-wide pool.
func Get(size int) []byte { return shared.Get(size) }

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) { shared.Put(buf) }
