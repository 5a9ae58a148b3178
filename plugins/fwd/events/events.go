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
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind identifies a decision point of the forwarding application.
type Kind string

const (
	// FrameIgnored is emitted for LLDP and other non-IPv4, non-ARP frames.
	FrameIgnored Kind = "frame-ignored"

	// ARPObserved is emitted for every ARP frame (no action is taken).
	ARPObserved Kind = "arp-observed"

	// DecodeFailed is emitted when the packet-in payload cannot be parsed.
	DecodeFailed Kind = "decode-failed"

	// EndpointUnresolved is emitted when source or destination host is unknown.
	EndpointUnresolved Kind = "endpoint-unresolved"

	// IngressEdge is emitted when the frame was received by the device
	// where the source host is attached.
	IngressEdge Kind = "ingress-edge"

	// TransitDevice is emitted when the receiving device is not the destination
	// edge and therefore nothing gets installed.
	TransitDevice Kind = "transit-device"

	// NoRoute is emitted when there is no path between the edges.
	NoRoute Kind = "no-route"

	// PathSelected is emitted with the path chosen for the flow.
	PathSelected Kind = "path-selected"

	// PolicyDeclined is emitted when the edge-installation policy refuses
	// to install a rule at the receiving device.
	PolicyDeclined Kind = "policy-declined"

	// RuleInstalled is emitted after a flow rule was submitted successfully.
	RuleInstalled Kind = "rule-installed"

	// RuleSkipped is emitted when an identical rule is already installed
	// or being installed.
	RuleSkipped Kind = "rule-skipped"

	// RuleRemoved is emitted when a device reports removal of an installed rule.
	RuleRemoved Kind = "rule-removed"

	// InstallFailed is emitted when flow rule submission fails.
	InstallFailed Kind = "install-failed"

	// InterceptStarted is emitted when the application starts intercepting packets.
	InterceptStarted Kind = "intercept-started"

	// InterceptStopped is emitted when the application stops intercepting packets.
	InterceptStopped Kind = "intercept-stopped"
)

// Well-known attribute names.
const (
	AttrDevice   = "device"
	AttrPort     = "port"
	AttrSrcMAC   = "src-mac"
	AttrDstMAC   = "dst-mac"
	AttrMAC      = "mac"
	AttrRole     = "role"
	AttrType     = "ether-type"
	AttrPath     = "path"
	AttrRule     = "rule"
	AttrOutPort  = "out-port"
	AttrReason   = "reason"
	AttrError    = "error"
	AttrApp      = "app"
	AttrSrcDev   = "src-device"
	AttrDstDev   = "dst-device"
	AttrHopCount = "hop-count"
)

// Attrs are attributes of an event.
type Attrs map[string]interface{}

// Event is a single observability record.
type Event struct {
	Kind  Kind      `json:"kind"`
	Time  time.Time `json:"time"`
	Attrs Attrs     `json:"attrs,omitempty"`
}

// NewEvent creates event of the given kind timestamped with the current time.
func NewEvent(kind Kind, attrs Attrs) Event {
	return Event{Kind: kind, Time: time.Now(), Attrs: attrs}
}

// String returns "<kind> {key=value, ...}" with attributes sorted by name.
func (ev Event) String() string {
	var keys []string
	for key := range ev.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var attrs []string
	for _, key := range keys {
		attrs = append(attrs, fmt.Sprintf("%s=%v", key, ev.Attrs[key]))
	}
	return fmt.Sprintf("%s {%s}", ev.Kind, strings.Join(attrs, ", "))
}

// Sink receives emitted events.
type Sink interface {
	Emit(ev Event)
}

// Emit creates a new event and passes it to the sink. Nil sink is allowed.
func Emit(sink Sink, kind Kind, attrs Attrs) {
	if sink == nil {
		return
	}
	sink.Emit(NewEvent(kind, attrs))
}

// multiSink fans events out to several sinks.
type multiSink []Sink

// Multi returns sink forwarding every event to all non-nil sinks.
func Multi(sinks ...Sink) Sink {
	var ms multiSink
	for _, sink := range sinks {
		if sink != nil {
			ms = append(ms, sink)
		}
	}
	return ms
}

// Emit forwards the event.
func (ms multiSink) Emit(ev Event) {
	for _, sink := range ms {
		sink.Emit(ev)
	}
}
