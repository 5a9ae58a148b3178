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
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	Expect(counter.Write(metric)).To(Succeed())
	return metric.GetCounter().GetValue()
}

func TestHistory(t *testing.T) {
	RegisterTestingT(t)

	history := NewHistory(3)
	Expect(history.List()).To(BeEmpty())

	Emit(history, NoRoute, Attrs{AttrDevice: "d1"})
	Emit(history, RuleInstalled, nil)
	Expect(history.List()).To(HaveLen(2))
	Expect(history.List()[0].Kind).To(Equal(NoRoute))

	Emit(history, ARPObserved, nil)
	Emit(history, RuleInstalled, Attrs{AttrDevice: "d2"})
	list := history.List()
	Expect(list).To(HaveLen(3))
	Expect(list[0].Kind).To(Equal(RuleInstalled))
	Expect(list[1].Kind).To(Equal(ARPObserved))
	Expect(list[2].Kind).To(Equal(RuleInstalled))

	Expect(history.Count(RuleInstalled)).To(Equal(2))
	Expect(history.Count(NoRoute)).To(Equal(0))

	last, found := history.Last(RuleInstalled)
	Expect(found).To(BeTrue())
	Expect(last.Attrs[AttrDevice]).To(Equal("d2"))
	_, found = history.Last(NoRoute)
	Expect(found).To(BeFalse())
}

func TestMultiAndPrometheus(t *testing.T) {
	RegisterTestingT(t)

	history := NewHistory(10)
	metrics := NewPrometheusSink(prometheus.Labels{"node": "test"})
	logSink := &LogSink{Log: logrus.DefaultLogger()}
	sink := Multi(history, nil, metrics, logSink)

	Emit(sink, RuleInstalled, Attrs{AttrDevice: "d2", AttrOutPort: 7})
	Emit(sink, RuleInstalled, Attrs{AttrDevice: "d2", AttrOutPort: 8})
	Emit(sink, InstallFailed, Attrs{AttrError: "boom"})

	Expect(history.List()).To(HaveLen(3))
	Expect(counterValue(metrics.Counter(RuleInstalled))).To(BeEquivalentTo(2))
	Expect(counterValue(metrics.Counter(InstallFailed))).To(BeEquivalentTo(1))
	Expect(counterValue(metrics.Counter(NoRoute))).To(BeEquivalentTo(0))

	// nil sink is tolerated
	Emit(nil, NoRoute, nil)
}

func TestEventString(t *testing.T) {
	RegisterTestingT(t)

	ev := NewEvent(EndpointUnresolved, Attrs{AttrRole: "dst", AttrMAC: "00:00:00:00:00:bb"})
	Expect(ev.String()).To(Equal("endpoint-unresolved {mac=00:00:00:00:00:bb, role=dst}"))
	Expect(ev.Time.IsZero()).To(BeFalse())
}
