// Package detect classifies a freshly observed setlist against the known one.
package detect

import (
	"strings"
	"time"
)

type Class int

const (
	// NotStarted means the source does not report the show yet.
	NotStarted Class = iota
	// Unchanged means nothing new was observed.
	Unchanged
	// Grown means new songs were appended.
	Grown
	// Shrunk means the source reports fewer songs than known.
	Shrunk
	// Diverged means the source rewrote songs which were already known.
	Diverged
)

var classNames = map[Class]string{
	NotStarted: "not_started",
	Unchanged:  "unchanged",
	Grown:      "grown",
	Shrunk:     "shrunk",
	Diverged:   "diverged",
}

func (c Class) String() string {
	return classNames[c]
}

// Anomaly reports whether the observed sequence should replace the known one.
func (c Class) Anomaly() bool {
	return c == Shrunk || c == Diverged
}

// StartThreshold is the largest observed length still treated as
// a placeholder page before the show starts.
const StartThreshold = 2

type Delta struct {
	Class Class
	// New songs in observed order, non-empty only for Grown.
	New []string
}

// Detector remembers whether the show has started.
type Detector struct {
	// Placeholders are title prefixes which mark the source page as not started
	// even when it lists more than StartThreshold entries.
	Placeholders []string
	// TrustLength makes length the only criterion: a longer observed sequence
	// is Grown even if its prefix differs from the known one.
	TrustLength bool

	started bool
}

func (d *Detector) Started() bool {
	return d.started
}

// Reset forgets the started state, e.g. when a new period begins.
func (d *Detector) Reset() {
	d.started = false
}

func (d *Detector) Detect(known, observed []string) Delta {
	if !d.started && len(known) > 0 {
		d.started = true
	}

	if !d.started {
		if len(observed) <= StartThreshold || d.placeholder(observed[0]) {
			return Delta{Class: NotStarted}
		}

		d.started = true
	}

	k, o := len(known), len(observed)
	switch {
	case o < k:
		return Delta{Class: Shrunk}
	case !d.TrustLength && !equal(known, observed[:k]):
		return Delta{Class: Diverged}
	case o == k:
		return Delta{Class: Unchanged}
	default:
		added := make([]string, o-k)
		copy(added, observed[k:])
		return Delta{Class: Grown, New: added}
	}
}

func (d *Detector) placeholder(title string) bool {
	for _, prefix := range d.Placeholders {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}

	return false
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// Policy maps a classification to the delay before the next observation.
type Policy struct {
	NotStarted time.Duration `yaml:"notstarted"`
	Unchanged  time.Duration `yaml:"unchanged"`
	Grown      time.Duration `yaml:"grown"`
	Anomaly    time.Duration `yaml:"anomaly"`
	Error      time.Duration `yaml:"error"`
}

var DefaultPolicy = Policy{
	NotStarted: time.Minute,
	Unchanged:  30 * time.Second,
	Grown:      2 * time.Minute,
	Anomaly:    10 * time.Second,
	Error:      30 * time.Second,
}

func (p Policy) Delay(class Class) time.Duration {
	switch class {
	case NotStarted:
		return p.NotStarted
	case Grown:
		return p.Grown
	case Shrunk, Diverged:
		return p.Anomaly
	default:
		return p.Unchanged
	}
}
