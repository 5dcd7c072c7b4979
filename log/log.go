// Package log provides logrus loggers for the mediagraph tool.
//
// Info level reports what a command did: rendered files, sent and
// received buffer counts. Debug level adds graph structure edits (nodes
// added, ports linked), transport connections and worker progress. Both
// graph.Graph and transport connections accept the returned loggers.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv enables debug level when set to true.
const DebugEnv = "MEDIAGRAPH_DEBUG"

// ComponentKey is the field that names the part of the tool that logged
// an entry: a graph, the transport or a worker.
const ComponentKey = "component"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger. Debug level is set if MEDIAGRAPH_DEBUG
// is true.
func GetLogger() *logrus.Logger {
	return New(debug)
}

// New returns a new logger with debug level enabled if requested.
func New(debug bool) *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Component returns logger for entries of named component, e.g. a graph
// driven by a command or the worker that feeds it.
func Component(l logrus.FieldLogger, name string) *logrus.Entry {
	return l.WithField(ComponentKey, name)
}
