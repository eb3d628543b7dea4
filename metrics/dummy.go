package metrics

var Dummy Registry = dummy{}

type dummy struct{}

func (dummy) WithPrefix(prefix string) Registry { return Dummy }

func (dummy) Counter(name string, labels Labels) Counter { return dummyMetric{} }

func (dummy) Gauge(name string, labels Labels) Gauge { return dummyMetric{} }

type dummyMetric struct{}

func (dummyMetric) Inc() {}

func (dummyMetric) Dec() {}

func (dummyMetric) Set(float64) {}

func (dummyMetric) Add(float64) {}

func (dummyMetric) Sub(float64) {}

// OrDummy returns registry or Dummy if registry is nil.
func OrDummy(registry Registry) Registry {
	if registry == nil {
		return Dummy
	}

	return registry
}
