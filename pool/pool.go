/*
Package pool provides fixed pools of sample blocks.

The main use case for this package is to exchange blocks between nodes
by id: producer publishes block id on its output port io and consumer
returns the block with buffer reuse once it's done. Pools never allocate
after construction, so they can be used in node callbacks.
*/
package pool

import (
	"github.com/go-audio/audio"
)

// Pool is a fixed set of blocks. It's not safe for concurrent use.
type Pool struct {
	format *audio.Format
	blocks []*audio.FloatBuffer
	used   []bool
	free   []uint32
}

// New returns pool of size blocks. Every block holds provided number of
// frames in provided format.
func New(size, frames int, format *audio.Format) *Pool {
	p := &Pool{
		format: format,
		blocks: make([]*audio.FloatBuffer, size),
		used:   make([]bool, size),
		free:   make([]uint32, 0, size),
	}
	for i := range p.blocks {
		p.blocks[i] = &audio.FloatBuffer{
			Format: format,
			Data:   make([]float64, frames*format.NumChannels),
		}
	}
	// lower ids are acquired first.
	for i := size - 1; i >= 0; i-- {
		p.free = append(p.free, uint32(i))
	}
	return p
}

// Acquire returns free block and its id. False is returned if all blocks
// are in use. Block data is reset to full length.
func (p *Pool) Acquire() (uint32, *audio.FloatBuffer, bool) {
	l := len(p.free)
	if l == 0 {
		return 0, nil, false
	}
	id := p.free[l-1]
	p.free = p.free[:l-1]
	p.used[id] = true
	b := p.blocks[id]
	b.Data = b.Data[:cap(b.Data)]
	return id, b, true
}

// Get returns block in use by id.
func (p *Pool) Get(id uint32) (*audio.FloatBuffer, bool) {
	if int(id) >= len(p.blocks) || !p.used[id] {
		return nil, false
	}
	return p.blocks[id], true
}

// Release returns block to the pool. False is returned if block is not
// in use.
func (p *Pool) Release(id uint32) bool {
	if int(id) >= len(p.blocks) || !p.used[id] {
		return false
	}
	p.used[id] = false
	p.free = append(p.free, id)
	return true
}

// Available returns number of free blocks.
func (p *Pool) Available() int {
	return len(p.free)
}

// Format returns format of blocks.
func (p *Pool) Format() *audio.Format {
	return p.format
}

// BlockSize returns number of samples in a full block.
func (p *Pool) BlockSize() int {
	if len(p.blocks) == 0 {
		return 0
	}
	return cap(p.blocks[0].Data)
}

// IntToFloat converts integer samples of provided bit depth into
// [-1, 1] range. Number of converted samples is returned.
func IntToFloat(dst []float64, src []int, bitDepth int) int {
	n := min(len(dst), len(src))
	scale := float64(int(1) << (bitDepth - 1))
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i]) / scale
	}
	return n
}

// FloatToInt converts samples in [-1, 1] range into integers of provided
// bit depth. Values out of range are clipped. Number of converted samples
// is returned.
func FloatToInt(dst []int, src []float64, bitDepth int) int {
	n := min(len(dst), len(src))
	scale := float64(int(1) << (bitDepth - 1))
	for i := 0; i < n; i++ {
		v := src[i]
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		s := int(v * scale)
		if s == int(scale) {
			s--
		}
		dst[i] = s
	}
	return n
}
