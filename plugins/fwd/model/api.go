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

package model

import "context"

// HostService is implemented by the host-tracking subsystem.
type HostService interface {
	// GetHost returns the host with the given hardware address.
	// Unknown host is reported with found=false, never as an error.
	GetHost(mac MAC) (host *Host, found bool)
}

// Topology is an opaque snapshot of the network topology.
type Topology interface {
	// Version increases with every topology change.
	Version() uint64
}

// TopologyService is implemented by the topology subsystem.
type TopologyService interface {
	// CurrentTopology returns the latest topology snapshot.
	CurrentTopology() Topology

	// GetPaths returns the set of paths between two devices as seen
	// in the given snapshot. Empty set means that no route exists.
	GetPaths(topo Topology, src, dst DeviceID) []*Path
}

// PacketProcessor consumes packet-in events.
type PacketProcessor interface {
	// Process is called once for every packet-in event, possibly concurrently.
	Process(ctx context.Context, event *PacketInEvent)
}

// PacketPriority is the priority of an interception request.
type PacketPriority int

const (
	// ReactivePriority is used for reactive forwarding of data-plane traffic.
	ReactivePriority PacketPriority = 5

	// ControlPriority is used for control-plane traffic.
	ControlPriority PacketPriority = 40000
)

// String converts PacketPriority into a human-readable string.
func (p PacketPriority) String() string {
	switch p {
	case ReactivePriority:
		return "reactive"
	case ControlPriority:
		return "control"
	}
	return "INVALID"
}

// PacketService is the packet-in bus of the controller.
type PacketService interface {
	// AddProcessor registers a packet processor. Processors are invoked
	// in the ascending order of their priorities.
	AddProcessor(processor PacketProcessor, priority int) error

	// RemoveProcessor un-registers previously added processor.
	RemoveProcessor(processor PacketProcessor) error

	// RequestPackets asks the network to punt frames of the given type.
	RequestPackets(etherType EtherType, priority PacketPriority, app AppID) error

	// CancelPackets withdraws a request previously made with RequestPackets.
	CancelPackets(etherType EtherType, priority PacketPriority, app AppID) error
}

// FlowRuleService programs flow tables of network devices.
type FlowRuleService interface {
	// ApplyFlowRules installs the given rules.
	ApplyFlowRules(ctx context.Context, rules ...*FlowRule) error

	// RemoveFlowRulesByAppID removes all rules owned by the application
	// from all devices.
	RemoveFlowRulesByAppID(ctx context.Context, app AppID) error
}

// DeviceNotifier reports devices connecting to and disconnecting from
// the controller.
type DeviceNotifier interface {
	// WatchDevices registers a callback invoked on every connection change.
	WatchDevices(cb func(device DeviceID, connected bool))
}

// FlowRemovalNotifier reports forwarding rules removed by the devices
// themselves, e.g. after their idle timeout expired.
type FlowRemovalNotifier interface {
	// WatchFlowRemovals registers a callback invoked for every removed rule
	// with the ID of the owning application.
	WatchFlowRemovals(cb func(device DeviceID, appID uint16, match FlowMatch))
}
