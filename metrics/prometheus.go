package metrics

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type key struct {
	prefix string
	name   string
}

type Prometheus struct {
	prefix   string
	registry *prometheus.Registry
	entries  map[key]prometheus.Collector
	mu       *sync.Mutex
}

func NewPrometheus(namespace string) *Prometheus {
	return &Prometheus{
		prefix:   namespace,
		registry: prometheus.NewRegistry(),
		entries:  make(map[key]prometheus.Collector),
		mu:       new(sync.Mutex),
	}
}

func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

func (p *Prometheus) WithPrefix(prefix string) Registry {
	copy := *p
	if copy.prefix != "" {
		copy.prefix += "_" + prefix
	} else {
		copy.prefix = prefix
	}

	return &copy
}

func (p *Prometheus) Counter(name string, labels Labels) Counter {
	collector := p.collector(name, labels, func(opts prometheus.Opts) prometheus.Collector {
		if labels == nil {
			return prometheus.NewCounter(prometheus.CounterOpts(opts))
		}

		return prometheus.NewCounterVec(prometheus.CounterOpts(opts), labels.Keys())
	})

	if labels != nil {
		return collector.(*prometheus.CounterVec).With(prometheus.Labels(labels))
	}

	return collector.(prometheus.Counter)
}

func (p *Prometheus) Gauge(name string, labels Labels) Gauge {
	collector := p.collector(name, labels, func(opts prometheus.Opts) prometheus.Collector {
		if labels == nil {
			return prometheus.NewGauge(prometheus.GaugeOpts(opts))
		}

		return prometheus.NewGaugeVec(prometheus.GaugeOpts(opts), labels.Keys())
	})

	if labels != nil {
		return collector.(*prometheus.GaugeVec).With(prometheus.Labels(labels))
	}

	return collector.(prometheus.Gauge)
}

func (p *Prometheus) collector(name string, labels Labels, create func(opts prometheus.Opts) prometheus.Collector) prometheus.Collector {
	k := key{p.prefix, name}
	p.mu.Lock()
	defer p.mu.Unlock()
	if collector, ok := p.entries[k]; ok {
		return collector
	}

	collector := create(prometheus.Opts{
		Name: strings.Trim(p.prefix+"_"+name, "_"),
		Help: strings.ReplaceAll(p.prefix, "_", " ") + " " + name,
	})

	p.registry.MustRegister(collector)
	p.entries[k] = collector
	return collector
}

// Serve exposes the registry on address under /metrics until ctx is done.
func (p *Prometheus) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: address, Handler: mux}
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	logrus.WithField("address", address).Infof("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen and serve")
	}

	return nil
}
