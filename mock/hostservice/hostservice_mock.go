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

package hostservice

import (
	"sync"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// MockHostService is a mock implementation of the host-tracking subsystem.
type MockHostService struct {
	sync.Mutex
	hosts   map[string]*model.Host
	lookups int
}

// NewMockHostService is a constructor for MockHostService.
func NewMockHostService() *MockHostService {
	return &MockHostService{
		hosts: make(map[string]*model.Host),
	}
}

// AddHost allows to simulate learning of a host.
func (m *MockHostService) AddHost(mac model.MAC, location model.ConnectPoint) {
	m.Lock()
	defer m.Unlock()
	m.hosts[mac.String()] = &model.Host{MAC: mac, Location: location}
}

// RemoveHost allows to simulate a host expiring.
func (m *MockHostService) RemoveHost(mac model.MAC) {
	m.Lock()
	defer m.Unlock()
	delete(m.hosts, mac.String())
}

// GetHost returns host added via AddHost().
func (m *MockHostService) GetHost(mac model.MAC) (*model.Host, bool) {
	m.Lock()
	defer m.Unlock()
	m.lookups++
	host, found := m.hosts[mac.String()]
	if !found {
		return nil, false
	}
	hostCopy := *host
	return &hostCopy, true
}

// Lookups returns the number of GetHost calls.
func (m *MockHostService) Lookups() int {
	m.Lock()
	defer m.Unlock()
	return m.lookups
}
