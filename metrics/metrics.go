// Package metrics is a thin facade over prometheus collectors
// so that components can count things without caring whether metrics are enabled.
package metrics

import "sort"

type Registry interface {
	WithPrefix(prefix string) Registry
	Counter(name string, labels Labels) Counter
	Gauge(name string, labels Labels) Gauge
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

type Labels map[string]string

func (labels Labels) Keys() []string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys
}
