// Package metrics owns the Prometheus registry shared by the usercheck client
// and the ReqRes stub. Collectors are created through the registry so they
// carry its namespace and are registered exactly once.
package metrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "usercheck"

// Option configures behaviour of a Registry.
type Option func(*options)

type options struct {
	namespace       string
	runtimeCollects bool
}

// WithNamespace prefixes every collector built by the registry.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = strings.TrimSpace(namespace)
	}
}

// WithoutDefaultCollectors skips the Go runtime and process collectors. A
// single scenario run writing a textfile has no use for them.
func WithoutDefaultCollectors() Option {
	return func(o *options) {
		o.runtimeCollects = false
	}
}

// Registry builds namespaced collectors and exposes them over HTTP or as a
// node-exporter textfile.
type Registry struct {
	namespace string
	registry  *prometheus.Registry
}

// NewRegistry creates a registry. The namespace defaults to "usercheck".
func NewRegistry(opts ...Option) *Registry {
	settings := options{namespace: defaultNamespace, runtimeCollects: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	reg := prometheus.NewRegistry()
	if settings.runtimeCollects {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Registry{namespace: settings.namespace, registry: reg}
}

// Namespace returns the prefix applied to collectors.
func (r *Registry) Namespace() string {
	if r == nil {
		return ""
	}
	return r.namespace
}

// CounterVec registers a counter labelled by labels under the registry namespace.
func (r *Registry) CounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.Namespace(),
		Name:      name,
		Help:      help,
	}, labels)
	r.register(vec)
	return vec
}

// Histogram registers a histogram under the registry namespace. nil buckets
// fall back to prometheus.DefBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) prometheus.Histogram {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.Namespace(),
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	r.register(h)
	return h
}

func (r *Registry) register(c prometheus.Collector) {
	if r == nil || r.registry == nil {
		return
	}
	r.registry.MustRegister(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil || r.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || r.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
