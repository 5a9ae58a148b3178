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

package pathsel

import (
	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// Selector picks one path between two devices from the set of candidates
// returned by the topology service for the current topology snapshot.
//
// The choice is deterministic, see Less.
type Selector struct {
	Deps
}

// Deps lists dependencies of the Selector.
type Deps struct {
	Log             logging.Logger
	TopologyService model.TopologyService
}

// Select returns the preferred path from <src> to <dst>.
// For src == dst the empty path is returned without querying the topology.
// found=false means that there is no route.
func (s *Selector) Select(src, dst model.DeviceID) (path *model.Path, found bool) {
	if src == dst {
		return &model.Path{}, true
	}
	if s.TopologyService == nil {
		s.Log.Warn("Topology service is not available")
		return nil, false
	}

	topo := s.TopologyService.CurrentTopology()
	candidates := s.TopologyService.GetPaths(topo, src, dst)
	for _, candidate := range candidates {
		if !isUsable(candidate, src, dst) {
			s.Log.Debugf("Skipping unusable path candidate %v", candidate)
			continue
		}
		if path == nil || Less(candidate, path) {
			path = candidate
		}
	}
	if path == nil {
		return nil, false
	}
	s.Log.Debugf("Selected %v out of %d candidates (%s -> %s)", path, len(candidates), src, dst)
	return path, true
}

// isUsable checks that the path is non-empty and connects <src> with <dst>.
func isUsable(path *model.Path, src, dst model.DeviceID) bool {
	if path.IsEmpty() {
		return false
	}
	return path.Src().Device == src && path.Dst().Device == dst
}

// Less defines the total order used to choose between candidate paths:
//  1. fewer links first,
//  2. then lexicographically smaller sequence of device identifiers,
//  3. then lexicographically smaller sequence of (egress, ingress) ports.
func Less(a, b *model.Path) bool {
	if a.HopCount() != b.HopCount() {
		return a.HopCount() < b.HopCount()
	}
	aDevs, bDevs := a.Devices(), b.Devices()
	for i := range aDevs {
		if aDevs[i] != bDevs[i] {
			return aDevs[i] < bDevs[i]
		}
	}
	for i := range a.Links {
		if a.Links[i].Src.Port != b.Links[i].Src.Port {
			return a.Links[i].Src.Port < b.Links[i].Src.Port
		}
		if a.Links[i].Dst.Port != b.Links[i].Dst.Port {
			return a.Links[i].Dst.Port < b.Links[i].Dst.Port
		}
	}
	return false
}
