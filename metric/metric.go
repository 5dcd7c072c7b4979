// Package metric exposes expvar counters of node activations. Counters
// are aggregated per processor type.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "graph.nodes"

const (
	// InputCounter counts process input calls.
	InputCounter = "Input"
	// OutputCounter counts process output calls.
	OutputCounter = "Output"
	// HaveBufferCounter counts calls that produced a buffer.
	HaveBufferCounter = "HaveBuffer"
	// NeedBufferCounter counts calls that requested a buffer.
	NeedBufferCounter = "NeedBuffer"
	// ErrorCounter counts failed calls.
	ErrorCounter = "Errors"
	// LatencyCounter measures latency between activations.
	LatencyCounter = "Latency"
	// NodeCounter counts number of nodes.
	NodeCounter = "Nodes"
)

// Op is the node callback that was measured.
type Op int

// Measured callbacks.
const (
	Input Op = iota
	Output
)

// results as ordered in graph.Result.
const (
	resultOK = iota
	resultNeedBuffer
	resultHaveBuffer
	resultError
)

var (
	components = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		InputCounter,
		OutputCounter,
		HaveBufferCounter,
		NeedBufferCounter,
		ErrorCounter,
		LatencyCounter,
		NodeCounter,
	}
)

// Get metrics values for provided component type.
func Get(component interface{}) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(componentType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// MeasureFunc captures metrics when node callback returns. Result is the
// integer value of graph.Result.
type MeasureFunc func(op Op, result int)

// Meter creates new meter closure to capture component counters. It
// doesn't allocate when called.
func Meter(component interface{}) MeasureFunc {
	t := getType(component)
	metric := components.get(t)
	metric.nodes.Add(1)
	var calledAt time.Time
	return func(op Op, result int) {
		now := time.Now()
		if !calledAt.IsZero() {
			metric.latency.set(now.Sub(calledAt))
		}
		calledAt = now
		switch op {
		case Input:
			metric.input.Add(1)
		case Output:
			metric.output.Add(1)
		}
		switch result {
		case resultHaveBuffer:
			metric.haveBuffer.Add(1)
		case resultNeedBuffer:
			metric.needBuffer.Add(1)
		case resultError:
			metric.errors.Add(1)
		}
	}
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(componentType string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(componentType)
	m.m[componentType] = metric
	return metric
}

type metric struct {
	nodes      *expvar.Int
	input      *expvar.Int
	output     *expvar.Int
	haveBuffer *expvar.Int
	needBuffer *expvar.Int
	errors     *expvar.Int
	latency    *duration
}

func newMetric(componentType string) metric {
	m := metric{
		nodes:      expvar.NewInt(key(componentType, NodeCounter)),
		input:      expvar.NewInt(key(componentType, InputCounter)),
		output:     expvar.NewInt(key(componentType, OutputCounter)),
		haveBuffer: expvar.NewInt(key(componentType, HaveBufferCounter)),
		needBuffer: expvar.NewInt(key(componentType, NeedBufferCounter)),
		errors:     expvar.NewInt(key(componentType, ErrorCounter)),
		latency:    &duration{},
	}
	expvar.Publish(key(componentType, LatencyCounter), m.latency)
	return m
}

func key(componentType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, componentType, counter)
}

func getType(component interface{}) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
