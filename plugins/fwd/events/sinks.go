// Copyright (c) 2019 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	eventsMetric     = "reactivefwd_events_total"
	eventsMetricHelp = "Number of decision events emitted by the reactive forwarding application"
	kindLabel        = "kind"
)

// LogSink writes events into the log as structured entries.
type LogSink struct {
	Log logging.Logger
}

// Emit logs the event. High-rate kinds are logged at the debug level.
func (s *LogSink) Emit(ev Event) {
	fields := logging.Fields{"event": string(ev.Kind)}
	for key, value := range ev.Attrs {
		fields[key] = value
	}
	entry := s.Log.WithFields(fields)
	switch ev.Kind {
	case FrameIgnored, ARPObserved, IngressEdge, TransitDevice, PathSelected, RuleSkipped:
		entry.Debug("reactive forwarding event")
	case InstallFailed, DecodeFailed:
		entry.Warn("reactive forwarding event")
	default:
		entry.Info("reactive forwarding event")
	}
}

// History keeps the last <size> events in memory.
type History struct {
	sync.Mutex
	size   int
	next   int
	full   bool
	events []Event
}

// NewHistory creates event history of the given capacity.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{size: size, events: make([]Event, size)}
}

// Emit records the event, overwriting the oldest one when full.
func (h *History) Emit(ev Event) {
	h.Lock()
	defer h.Unlock()

	h.events[h.next] = ev
	h.next = (h.next + 1) % h.size
	if h.next == 0 {
		h.full = true
	}
}

// List returns recorded events, oldest first.
func (h *History) List() []Event {
	h.Lock()
	defer h.Unlock()

	if !h.full {
		return append([]Event{}, h.events[:h.next]...)
	}
	list := append([]Event{}, h.events[h.next:]...)
	return append(list, h.events[:h.next]...)
}

// Count returns the number of recorded events of the given kind.
func (h *History) Count(kind Kind) (count int) {
	for _, ev := range h.List() {
		if ev.Kind == kind {
			count++
		}
	}
	return count
}

// Last returns the most recent recorded event of the given kind.
func (h *History) Last(kind Kind) (ev Event, found bool) {
	list := h.List()
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Kind == kind {
			return list[i], true
		}
	}
	return Event{}, false
}

// PrometheusSink counts events per kind.
type PrometheusSink struct {
	counters *prometheus.CounterVec
}

// NewPrometheusSink creates sink with a counter vector labeled by event kind.
func NewPrometheusSink(constLabels prometheus.Labels) *PrometheusSink {
	return &PrometheusSink{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        eventsMetric,
			Help:        eventsMetricHelp,
			ConstLabels: constLabels,
		}, []string{kindLabel}),
	}
}

// Collector returns the counter vector to be registered into a prometheus registry.
func (s *PrometheusSink) Collector() prometheus.Collector {
	return s.counters
}

// Counter returns the counter associated with the given kind.
func (s *PrometheusSink) Counter(kind Kind) prometheus.Counter {
	return s.counters.WithLabelValues(string(kind))
}

// Emit increments the counter of the event kind.
func (s *PrometheusSink) Emit(ev Event) {
	s.Counter(ev.Kind).Inc()
}
