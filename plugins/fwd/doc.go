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

// Package fwd implements the reactive forwarding application.
//
// The application registers a packet processor on the packet-in bus and asks
// the network to punt IPv4 frames which did not match any flow. For every such
// frame the processor resolves the source and destination hosts, and when the
// frame was received at the destination's attachment device, selects a path
// between both edges and installs a flow rule (match: in-port, source and
// destination MAC; action: output) so that the rest of the flow bypasses
// the controller.
//
// The application is split into layers:
//   - processor: frame classification and the forwarding decision
//   - resolver: mapping of MAC addresses onto attached hosts
//   - pathsel: deterministic selection of one path between two devices
//   - installer: construction and de-duplicated installation of flow rules
//   - events: structured decision events (log, Prometheus, in-memory history)
//
// The collaborators (host tracking, topology, packet-in bus and flow
// programming) are injected through Deps, see the model package.
package fwd
