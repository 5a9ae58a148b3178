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

// Package openflow implements a minimal OpenFlow 1.3 controller serving as
// the southbound of the reactive forwarding application.
//
// Switches connect over TCP (default port 6653). After the hello/features
// handshake every switch is identified as "of:<datapath ID in hex>" and kept
// alive with echo requests. Packet-ins are dispatched to the registered packet
// processors; interception requests are installed as flows punting the
// requested ether-type to the controller and are replayed on every switch
// that connects later.
//
// Flows carry the owning application ID in the upper 16 bits of the cookie,
// which is how RemoveFlowRulesByAppID finds them.
package openflow
