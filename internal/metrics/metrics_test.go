package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recordingBackend struct {
	mu      sync.Mutex
	calls   []call
	flushed int
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recordingBackend) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
	return nil
}

func (r *recordingBackend) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.name)
	}
	return out
}

// Tests below swap the global backend and must not run in parallel.

func withBackend(t *testing.T) *recordingBackend {
	t.Helper()
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })
	return rb
}

func TestRecordHTTP(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		err        error
		wantStatus string
		wantError  bool
	}{
		{name: "ok", status: 200, wantStatus: "200"},
		{name: "server error", status: 503, wantStatus: "503", wantError: true},
		{name: "no response", status: 0, err: errors.New("dial"), wantStatus: "error", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := withBackend(t)
			RecordHTTP(tt.status, tt.err, 250*time.Millisecond)

			var sawErr bool
			for _, c := range rb.calls {
				if c.labels["status"] != tt.wantStatus {
					t.Errorf("%s status label = %q, want %q", c.name, c.labels["status"], tt.wantStatus)
				}
				if c.name == HTTPErrorsTotal {
					sawErr = true
				}
				if c.name == HTTPRequestDuration && c.value != 0.25 {
					t.Errorf("duration = %v, want 0.25", c.value)
				}
			}
			if sawErr != tt.wantError {
				t.Errorf("error counter recorded = %v, want %v", sawErr, tt.wantError)
			}
		})
	}
}

func TestRecordPhase(t *testing.T) {
	rb := withBackend(t)

	RecordPhase("entries", nil, time.Second)
	RecordPhase("fetch", errors.New("boom"), time.Second)

	if len(rb.calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(rb.calls))
	}
	if rb.calls[0].labels["status"] != "ok" || rb.calls[0].labels["phase"] != "entries" {
		t.Errorf("first labels = %v", rb.calls[0].labels)
	}
	if rb.calls[2].labels["status"] != "error" {
		t.Errorf("failed phase labels = %v", rb.calls[2].labels)
	}
}

func TestRecordRecords_IgnoresNonPositive(t *testing.T) {
	rb := withBackend(t)

	RecordRecords("inserted", 0)
	RecordRecords("inserted", -3)
	RecordRecords("failed", 2)
	RecordBatch()

	names := rb.names()
	if len(names) != 2 || names[0] != RecordsTotal || names[1] != BatchesTotal {
		t.Errorf("names = %v", names)
	}
	if rb.calls[0].value != 2 || rb.calls[0].labels["kind"] != "failed" {
		t.Errorf("records call = %+v", rb.calls[0])
	}
}

func TestFlush(t *testing.T) {
	rb := withBackend(t)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if rb.flushed != 1 {
		t.Errorf("flushed = %d, want 1", rb.flushed)
	}

	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Errorf("Flush() on nop backend error: %v", err)
	}
	IncCounter("anything", 1, nil)
}

func TestRecordAPI(t *testing.T) {
	rb := withBackend(t)

	RecordAPI("GET /api/sequences/{index}", 404, 10*time.Millisecond)
	RecordAPI("", 404, time.Millisecond)

	if len(rb.calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(rb.calls))
	}
	if rb.calls[0].name != APIRequestsTotal || rb.calls[0].labels["route"] != "GET /api/sequences/{index}" {
		t.Errorf("first call = %+v", rb.calls[0])
	}
	if rb.calls[1].name != APIRequestDuration || rb.calls[1].labels["status"] != "404" {
		t.Errorf("second call = %+v", rb.calls[1])
	}
	if rb.calls[2].labels["route"] != "unmatched" {
		t.Errorf("empty route label = %q", rb.calls[2].labels["route"])
	}
}
