// Package metrics holds the prometheus instruments of the mailbox.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is nil-safe: a nil *Recorder records nothing.
type Recorder struct {
	enqueued      *prometheus.CounterVec
	bundlesNew    prometheus.Counter
	bundlesClosed prometheus.Counter
	peeks         *prometheus.CounterVec
	dequeues      *prometheus.CounterVec
	retries       prometheus.Counter
	orphans       prometheus.Counter
	render        *prometheus.HistogramVec
}

// New registers the instruments on reg, reusing collectors that are already
// registered. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{}
	var err error
	if r.enqueued, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edihub_messages_enqueued_total",
		Help: "Outgoing messages committed to a bundle",
	}, []string{"document_type"})); err != nil {
		return nil, err
	}
	if r.bundlesNew, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edihub_bundles_created_total",
		Help: "Bundles opened",
	})); err != nil {
		return nil, err
	}
	if r.bundlesClosed, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edihub_bundles_closed_total",
		Help: "Bundles closed by reaching capacity or by a peek",
	})); err != nil {
		return nil, err
	}
	if r.peeks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edihub_peek_total",
		Help: "Peek requests by category and outcome",
	}, []string{"category", "result"})); err != nil {
		return nil, err
	}
	if r.dequeues, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edihub_dequeue_total",
		Help: "Dequeue requests by outcome",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if r.retries, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edihub_bundle_assign_retries_total",
		Help: "Enqueue transactions retried after a bundling conflict",
	})); err != nil {
		return nil, err
	}
	if r.orphans, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edihub_orphaned_content_total",
		Help: "Content written whose message row failed to commit",
	})); err != nil {
		return nil, err
	}
	if r.render, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edihub_render_seconds",
		Help:    "Time spent rendering a bundle document",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *Recorder) MessageEnqueued(documentType string) {
	if r == nil {
		return
	}
	r.enqueued.WithLabelValues(documentType).Inc()
}

func (r *Recorder) BundleCreated() {
	if r == nil {
		return
	}
	r.bundlesNew.Inc()
}

func (r *Recorder) BundleClosed() {
	if r == nil {
		return
	}
	r.bundlesClosed.Inc()
}

// Peek results: "hit", "empty", "error".
func (r *Recorder) Peek(category, result string) {
	if r == nil {
		return
	}
	r.peeks.WithLabelValues(category, result).Inc()
}

// Dequeue results: "ok", "rejected", "error".
func (r *Recorder) Dequeue(result string) {
	if r == nil {
		return
	}
	r.dequeues.WithLabelValues(result).Inc()
}

func (r *Recorder) AssignRetry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

func (r *Recorder) OrphanedContent() {
	if r == nil {
		return
	}
	r.orphans.Inc()
}

func (r *Recorder) ObserveRender(format string, d time.Duration) {
	if r == nil {
		return
	}
	r.render.WithLabelValues(format).Observe(d.Seconds())
}
