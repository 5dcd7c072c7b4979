package log_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/transport"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, log.New(true).GetLevel())
	assert.Equal(t, logrus.InfoLevel, log.New(false).GetLevel())
}

func TestLogger(t *testing.T) {
	l := log.GetLogger()
	// logger is accepted by graph and transport.
	g := graph.New(graph.WithLogger(l))
	assert.NotNil(t, g)
	assert.NotNil(t, transport.WithLogger(l))
}

type idle struct{}

func (idle) ProcessInput(*graph.Node) graph.Result  { return graph.OK }
func (idle) ProcessOutput(*graph.Node) graph.Result { return graph.OK }

func TestComponent(t *testing.T) {
	var out bytes.Buffer
	l := log.New(true)
	l.SetOutput(&out)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	g := graph.New(graph.WithName("render"), graph.WithLogger(log.Component(l, "graph")))
	_, err := g.AddNode(idle{})
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "component=graph")
	assert.Contains(t, out.String(), "added node")

	out.Reset()
	log.Component(l, "reader").Info("done")
	assert.Contains(t, out.String(), "component=reader")

	// debug entries are dropped at info level.
	out.Reset()
	l.SetLevel(logrus.InfoLevel)
	log.Component(l, "transport").Debug("accepted")
	assert.Empty(t, out.String())
}
