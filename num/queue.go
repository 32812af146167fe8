package num

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// QueueSize is the number of functions which are buffered before the queue is flushed.
const QueueSize = 64

// Device interface type
type Device interface {
	// Setup new worker queue
	NewQueue() Queue
	// Allocate new n dimensional array
	NewArray(dtype DataType, dims ...int) *Array
	NewArrayLike(a *Array) *Array
}

// A Queue processes a series of operations on a Device
type Queue interface {
	Device
	Dev() Device
	// Queue function calls for execution
	Call(args ...Function) Queue
	// Wait for any pending requests to complete
	Finish()
	// Shutdown the queue and release any resources
	Shutdown()
	// Enable profiling
	Profiling(on bool)
	Profile() string
}

// NewCPUDevice returns a device which executes using the gonum blas routines.
func NewCPUDevice() Device {
	return cpuDevice{}
}

type cpuDevice struct{}

func (d cpuDevice) NewArray(dtype DataType, dims ...int) *Array {
	return newArray(dtype, dims)
}

func (d cpuDevice) NewArrayLike(a *Array) *Array {
	return newArray(a.Dtype(), a.Dims())
}

func (d cpuDevice) NewQueue() Queue {
	return &cpuQueue{
		cpuDevice: d,
		profile:   newProfile(),
	}
}

type cpuQueue struct {
	cpuDevice
	buffer [QueueSize]Function
	queued int
	*profile
}

func (q *cpuQueue) Dev() Device { return q.cpuDevice }

func (q *cpuQueue) exec() {
	for i, fn := range q.buffer[:q.queued] {
		if q.profile.enabled {
			start := time.Now()
			fn.call()
			q.profile.add(fn.desc, time.Since(start))
		} else {
			fn.call()
		}
		q.buffer[i] = Function{}
	}
	q.queued = 0
}

func (q *cpuQueue) Call(args ...Function) Queue {
	for _, arg := range args {
		if arg.call == nil {
			panic("Call: function is nil")
		}
		if q.queued >= QueueSize {
			q.exec()
		}
		q.buffer[q.queued] = arg
		q.queued++
	}
	return q
}

func (q *cpuQueue) Finish() {
	if q.queued > 0 {
		q.exec()
	}
}

func (q *cpuQueue) Shutdown() {
	q.Finish()
	if q.profile.enabled {
		fmt.Printf("== Profile ==\n%s\n", q.Profile())
	}
}

// profiling functions
type profile struct {
	prof    map[string]profileRec
	enabled bool
}

type profileRec struct {
	name  string
	calls int64
	msec  float64
}

func newProfile() *profile {
	return &profile{prof: make(map[string]profileRec)}
}

func (p *profile) Profiling(on bool) {
	p.enabled = on
}

func (p *profile) add(name string, elapsed time.Duration) {
	r := p.prof[name]
	r.name = name
	r.calls++
	r.msec += elapsed.Seconds() * 1000
	p.prof[name] = r
}

func (p *profile) Profile() string {
	list := make([]profileRec, 0, len(p.prof))
	for _, v := range p.prof {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[j].msec < list[i].msec })
	totalCalls := int64(0)
	totalMsec := 0.0
	var s []string
	for _, r := range list {
		s = append(s, fmt.Sprintf("%-25s %8d calls %10.1f msec", r.name, r.calls, r.msec))
		totalCalls += r.calls
		totalMsec += r.msec
	}
	s = append(s, fmt.Sprintf("%-25s %8d calls %10.1f msec", "TOTAL", totalCalls, totalMsec))
	return strings.Join(s, "\n")
}
