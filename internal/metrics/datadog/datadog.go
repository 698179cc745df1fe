// Package datadog implements a Datadog backend for internal/metrics.
//
// Values are buffered in memory and submitted on Flush. A background loop
// flushes every FlushEvery; Close stops the loop and flushes one last time, so
// a short seeder run still lands its counters and a long one gets a time series.
//
// Only the metric names known to internal/metrics are accepted; anything else
// is dropped.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/heartmarshall/oeisdb/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "oeisdb".
	JobName string

	// Tags are extra Datadog tags, e.g. "env:prod".
	Tags []string

	// FlushEvery defaults to 60s when <= 0.
	FlushEvery time.Duration

	// Test seams.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// seriesNames maps facade names to Datadog names. The label keys listed are
// the only ones turned into tags.
var seriesNames = map[string]struct {
	dd     string
	labels []string
}{
	metrics.HTTPRequestsTotal:   {"oeis.http.requests.total", []string{"status"}},
	metrics.HTTPErrorsTotal:     {"oeis.http.errors.total", []string{"status"}},
	metrics.HTTPRequestDuration: {"oeis.http.request_duration_seconds", []string{"status"}},
	metrics.PhaseTotal:          {"seeder.phase.total", []string{"phase", "status"}},
	metrics.PhaseDuration:       {"seeder.phase.duration_seconds", []string{"phase", "status"}},
	metrics.RecordsTotal:        {"seeder.records.total", []string{"kind"}},
	metrics.BatchesTotal:        {"seeder.batches.total", nil},
	metrics.APIRequestsTotal:    {"api.requests.total", []string{"route", "status"}},
	metrics.APIRequestDuration:  {"api.request_duration_seconds", []string{"route", "status"}},
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[seriesKey]float64
	samples  map[seriesKey][]float64
}

// seriesKey identifies one Datadog series: its name and the extra tags,
// joined with NUL.
type seriesKey struct {
	metric string
	tags   string
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials come from DD_API_KEY and DD_SITE as read
// by dd.NewDefaultContext.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "oeisdb"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[seriesKey]float64),
		samples:    make(map[seriesKey][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call it once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

func keyFor(name string, labels metrics.Labels) (seriesKey, bool) {
	def, ok := seriesNames[name]
	if !ok {
		return seriesKey{}, false
	}
	tags := make([]string, 0, len(def.labels))
	for _, l := range def.labels {
		v := labels[l]
		if v == "" {
			v = "unknown"
		}
		tags = append(tags, l+":"+v)
	}
	return seriesKey{metric: def.dd, tags: strings.Join(tags, "\x00")}, true
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k, ok := keyFor(name, labels)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[k] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k, ok := keyFor(name, labels)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[k] = append(b.samples[k], value)
}

type snapshot struct {
	counters map[seriesKey]float64
	samples  map[seriesKey][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counters) == 0 && len(s.samples) == 0
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counters: b.counters, samples: b.samples}
	b.counters = make(map[seriesKey]float64)
	b.samples = make(map[seriesKey][]float64)
	return s
}

// Flush submits buffered metrics and resets local buffers, even when the
// submission fails. Returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure: counters become COUNT series, sample sets become
// percentile GAUGE series. Output is sorted by metric name then tags.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+6*len(s.samples))

	for k, v := range s.counters {
		if v == 0 {
			continue
		}
		series = append(series, point(k.metric, datadogV2.METRICINTAKETYPE_COUNT, v, b.tagsFor(k), nowUnix))
	}

	for k, samples := range s.samples {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)

		tags := b.tagsFor(k)
		gauge := datadogV2.METRICINTAKETYPE_GAUGE
		series = append(series,
			point(k.metric+".p50", gauge, percentileNearestRank(cp, 0.50), tags, nowUnix),
			point(k.metric+".p90", gauge, percentileNearestRank(cp, 0.90), tags, nowUnix),
			point(k.metric+".p95", gauge, percentileNearestRank(cp, 0.95), tags, nowUnix),
			point(k.metric+".p99", gauge, percentileNearestRank(cp, 0.99), tags, nowUnix),
			point(k.metric+".max", gauge, cp[len(cp)-1], tags, nowUnix),
			point(k.metric+".samples", gauge, float64(len(cp)), tags, nowUnix),
		)
	}

	sort.Slice(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

func (b *Backend) tagsFor(k seriesKey) []string {
	out := make([]string, 0, len(b.baseTags)+2)
	out = append(out, b.baseTags...)
	if k.tags != "" {
		out = append(out, strings.Split(k.tags, "\x00")...)
	}
	return out
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
