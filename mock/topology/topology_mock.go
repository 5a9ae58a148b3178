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

package topology

import (
	"sync"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// MockTopology is a trivial topology snapshot.
type MockTopology struct {
	version uint64
}

// Version returns the snapshot version.
func (t *MockTopology) Version() uint64 {
	return t.version
}

// MockTopologyService is a mock implementation of the topology subsystem
// returning pre-configured sets of paths.
type MockTopologyService struct {
	sync.Mutex
	version uint64
	paths   map[model.DeviceID]map[model.DeviceID][]*model.Path
	queries int
}

// NewMockTopologyService is a constructor for MockTopologyService.
func NewMockTopologyService() *MockTopologyService {
	return &MockTopologyService{
		paths: make(map[model.DeviceID]map[model.DeviceID][]*model.Path),
	}
}

// SetPaths sets the candidate paths between two devices.
// Every call increases the topology version.
func (m *MockTopologyService) SetPaths(src, dst model.DeviceID, paths ...*model.Path) {
	m.Lock()
	defer m.Unlock()
	if _, has := m.paths[src]; !has {
		m.paths[src] = make(map[model.DeviceID][]*model.Path)
	}
	m.paths[src][dst] = paths
	m.version++
}

// CurrentTopology returns snapshot of the current version.
func (m *MockTopologyService) CurrentTopology() model.Topology {
	m.Lock()
	defer m.Unlock()
	return &MockTopology{version: m.version}
}

// GetPaths returns paths configured via SetPaths().
func (m *MockTopologyService) GetPaths(topo model.Topology, src, dst model.DeviceID) []*model.Path {
	m.Lock()
	defer m.Unlock()
	m.queries++
	return m.paths[src][dst]
}

// Queries returns the number of GetPaths calls.
func (m *MockTopologyService) Queries() int {
	m.Lock()
	defer m.Unlock()
	return m.queries
}

// NewPath is a helper building path from a list of links given as
// (src device, src port, dst device, dst port) quadruples.
func NewPath(hops ...interface{}) *model.Path {
	path := &model.Path{}
	for i := 0; i+3 < len(hops); i += 4 {
		path.Links = append(path.Links, model.Link{
			Src: model.ConnectPoint{Device: model.DeviceID(hops[i].(string)), Port: model.PortNumber(hops[i+1].(int))},
			Dst: model.ConnectPoint{Device: model.DeviceID(hops[i+2].(string)), Port: model.PortNumber(hops[i+3].(int))},
		})
	}
	return path
}
