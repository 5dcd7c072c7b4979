package wav_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph"
	"pipelined.dev/graph/wav"
)

const (
	sampleRate  = 44100
	numChannels = 2
	bitDepth    = 16
	frames      = 64
)

// testSamples returns interleaved 16 bit samples.
func testSamples(n int) []int {
	samples := make([]int, n*numChannels)
	for i := range samples {
		samples[i] = (i*37)%65536 - 32768
	}
	return samples
}

func writeWav(t *testing.T, path string, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	e := gowav.NewEncoder(f, sampleRate, bitDepth, numChannels, 1)
	require.NoError(t, e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, e.Close())
}

func readWav(t *testing.T, path string) *audio.IntBuffer {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d := gowav.NewDecoder(f)
	require.True(t, d.IsValidFile())
	b, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return b
}

// fileGraph links wav source to wav sink.
type fileGraph struct {
	source    *graph.Node
	sink      *graph.Node
	wavSource *wav.Source
	wavSink   *wav.Sink
	in        *os.File
	out       *os.File
	graph     *graph.Graph
	scheduler *graph.Scheduler
}

func newFileGraph(t *testing.T, samples []int) *fileGraph {
	t.Helper()
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.wav")
	writeWav(t, inPath, samples)

	in, err := os.Open(inPath)
	require.NoError(t, err)
	source, err := wav.NewSource(in, 2, frames)
	require.NoError(t, err)
	out, err := os.Create(filepath.Join(dir, "out.wav"))
	require.NoError(t, err)
	sink, err := wav.NewSink(out, source.Pool(), bitDepth)
	require.NoError(t, err)

	g := graph.New()
	sourceNode, err := g.AddNode(source, graph.Named("source"))
	require.NoError(t, err)
	sinkNode, err := g.AddNode(sink, graph.Named("sink"))
	require.NoError(t, err)
	op, _ := sourceNode.AddPort(graph.Output)
	ip, _ := sinkNode.AddPort(graph.Input)
	_, err = g.Link(op, ip)
	require.NoError(t, err)
	return &fileGraph{
		source:    sourceNode,
		sink:      sinkNode,
		wavSource: source,
		wavSink:   sink,
		in:        in,
		out:       out,
		graph:     g,
		scheduler: graph.NewScheduler(g),
	}
}

func (fg *fileGraph) close(t *testing.T) {
	t.Helper()
	assert.NoError(t, fg.wavSink.Close())
	assert.NoError(t, fg.out.Close())
	assert.NoError(t, fg.in.Close())
}

func TestPull(t *testing.T) {
	samples := testSamples(500)
	fg := newFileGraph(t, samples)
	for i := 0; !fg.wavSource.Done(); i++ {
		require.Less(t, i, 100, "source never finished")
		require.NoError(t, fg.scheduler.Pull(fg.sink))
	}
	fg.close(t)

	assert.NoError(t, fg.wavSource.Err())
	assert.NoError(t, fg.wavSink.Err())
	assert.Equal(t, 500, fg.wavSink.Frames())
	assert.Equal(t, 2, fg.wavSource.Pool().Available())
	result := readWav(t, fg.out.Name())
	assert.Equal(t, samples, result.Data)
	assert.Equal(t, numChannels, result.Format.NumChannels)
	assert.Equal(t, sampleRate, result.Format.SampleRate)
}

func TestPush(t *testing.T) {
	samples := testSamples(130)
	fg := newFileGraph(t, samples)
	for i := 0; !fg.wavSource.Done(); i++ {
		require.Less(t, i, 100, "source never finished")
		require.NoError(t, fg.scheduler.Push(fg.source))
	}
	fg.close(t)

	assert.Equal(t, 130, fg.wavSink.Frames())
	assert.Equal(t, samples, readWav(t, fg.out.Name()).Data)
}

func TestErrors(t *testing.T) {
	_, err := wav.NewSource(bytes.NewReader([]byte("not a wav file")), 1, frames)
	assert.True(t, errors.Is(err, wav.ErrInvalidFile))

	samples := testSamples(10)
	fg := newFileGraph(t, samples)
	defer fg.close(t)
	_, err = wav.NewSink(fg.out, fg.wavSource.Pool(), 8)
	assert.True(t, errors.Is(err, wav.ErrUnsupportedBitDepth))

	// nodes without ports fail.
	n, err := fg.graph.AddNode(fg.wavSink)
	require.NoError(t, err)
	assert.Equal(t, graph.Error, fg.wavSink.ProcessInput(n))
	assert.True(t, errors.Is(fg.wavSink.Err(), wav.ErrNoPort))
	assert.Equal(t, graph.Error, fg.wavSource.ProcessOutput(n))
	assert.True(t, errors.Is(fg.wavSource.Err(), wav.ErrNoPort))

	// unknown block id.
	ip, _ := fg.sink.Port(graph.Input, 0)
	ip.IO().Status = graph.HaveBuffer
	ip.IO().BufferID = 1
	assert.Equal(t, graph.Error, fg.wavSink.ProcessInput(fg.sink))
	assert.True(t, errors.Is(fg.wavSink.Err(), wav.ErrUnknownBuffer))
}
