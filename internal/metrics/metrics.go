// Package metrics is a small process-wide facade over a pluggable metrics
// backend. Callers record through the package functions; the binary picks the
// backend once at startup with SetBackend. The default backend drops everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names recorded by this module.
const (
	HTTPRequestsTotal   = "oeis_http_requests_total"
	HTTPErrorsTotal     = "oeis_http_errors_total"
	HTTPRequestDuration = "oeis_http_request_duration_seconds"

	PhaseTotal    = "seeder_phase_total"
	PhaseDuration = "seeder_phase_duration_seconds"
	RecordsTotal  = "seeder_records_total"
	BatchesTotal  = "seeder_batches_total"

	APIRequestsTotal   = "api_requests_total"
	APIRequestDuration = "api_request_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives recorded values.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend replaces the process-wide backend. nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordHTTP records one outbound HTTP attempt. status 0 means the request
// never produced a response.
func RecordHTTP(status int, err error, d time.Duration) {
	s := "error"
	if status > 0 {
		s = strconv.Itoa(status)
	}
	labels := Labels{"status": s}

	IncCounter(HTTPRequestsTotal, 1, labels)
	if err != nil || status >= 400 || status == 0 {
		IncCounter(HTTPErrorsTotal, 1, labels)
	}
	ObserveHistogram(HTTPRequestDuration, d.Seconds(), labels)
}

// RecordPhase records the outcome and duration of a pipeline phase.
func RecordPhase(phase string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := Labels{"phase": phase, "status": status}
	IncCounter(PhaseTotal, 1, labels)
	ObserveHistogram(PhaseDuration, d.Seconds(), labels)
}

// RecordRecords adds n records of the given kind (inserted, skipped, failed...).
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one written batch.
func RecordBatch() {
	IncCounter(BatchesTotal, 1, nil)
}

// RecordAPI records one served request. route is the matched mux pattern,
// or "unmatched".
func RecordAPI(route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	labels := Labels{"route": route, "status": strconv.Itoa(status)}
	IncCounter(APIRequestsTotal, 1, labels)
	ObserveHistogram(APIRequestDuration, d.Seconds(), labels)
}
