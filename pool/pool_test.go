package pool_test

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/pool"
)

func TestPool(t *testing.T) {
	format := &audio.Format{NumChannels: 2, SampleRate: 44100}
	p := pool.New(2, 16, format)
	assert.Equal(t, 2, p.Available())
	assert.Equal(t, format, p.Format())

	id, b, ok := p.Acquire()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, 32, len(b.Data))
	assert.Equal(t, format, b.Format)
	b.Data = b.Data[:4]

	id2, _, ok := p.Acquire()
	assert.True(t, ok)
	assert.Equal(t, uint32(1), id2)
	_, _, ok = p.Acquire()
	assert.False(t, ok)

	got, ok := p.Get(id)
	assert.True(t, ok)
	assert.Equal(t, b, got)

	assert.True(t, p.Release(id))
	assert.False(t, p.Release(id))
	assert.False(t, p.Release(10))
	_, ok = p.Get(id)
	assert.False(t, ok)

	// released block is reset to full length.
	id, b, ok = p.Acquire()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, 32, len(b.Data))
}

func TestPoolAllocations(t *testing.T) {
	p := pool.New(4, 128, &audio.Format{NumChannels: 1, SampleRate: 8000})
	allocs := testing.AllocsPerRun(100, func() {
		id, _, _ := p.Acquire()
		p.Get(id)
		p.Release(id)
	})
	assert.Equal(t, float64(0), allocs)
}

func TestConvert(t *testing.T) {
	ints := []int{0, 16384, -32768, 32767}
	floats := make([]float64, 3)
	assert.Equal(t, 3, pool.IntToFloat(floats, ints, 16))
	assert.Equal(t, []float64{0, 0.5, -1}, floats)

	out := make([]int, 4)
	assert.Equal(t, 4, pool.FloatToInt(out, []float64{0.5, 1, -2, 2}, 16))
	assert.Equal(t, []int{16384, 32767, -32768, 32767}, out)
}
