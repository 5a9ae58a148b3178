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

package packetservice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

type registeredProcessor struct {
	processor model.PacketProcessor
	priority  int
}

// MockPacketService is a mock implementation of the packet-in bus.
type MockPacketService struct {
	sync.Mutex

	processors []registeredProcessor
	requests   map[string]int // request key -> number of active requests

	addErr     error
	removeErr  error
	requestErr error
	cancelErr  error
}

// NewMockPacketService is a constructor for MockPacketService.
func NewMockPacketService() *MockPacketService {
	return &MockPacketService{
		requests: make(map[string]int),
	}
}

func requestKey(etherType model.EtherType, priority model.PacketPriority, app model.AppID) string {
	return fmt.Sprintf("%s/%s/%d", etherType, priority, app.ID)
}

// SetErrors injects errors returned by the individual methods (nil to clear).
func (m *MockPacketService) SetErrors(addErr, removeErr, requestErr, cancelErr error) {
	m.Lock()
	defer m.Unlock()
	m.addErr, m.removeErr, m.requestErr, m.cancelErr = addErr, removeErr, requestErr, cancelErr
}

// AddProcessor registers the processor (duplicates are recorded as well
// so that tests can detect them).
func (m *MockPacketService) AddProcessor(processor model.PacketProcessor, priority int) error {
	m.Lock()
	defer m.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.processors = append(m.processors, registeredProcessor{processor: processor, priority: priority})
	sort.SliceStable(m.processors, func(i, j int) bool {
		return m.processors[i].priority < m.processors[j].priority
	})
	return nil
}

// RemoveProcessor un-registers all registrations of the processor.
func (m *MockPacketService) RemoveProcessor(processor model.PacketProcessor) error {
	m.Lock()
	defer m.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	var kept []registeredProcessor
	for _, reg := range m.processors {
		if reg.processor != processor {
			kept = append(kept, reg)
		}
	}
	m.processors = kept
	return nil
}

// RequestPackets records the interception request.
func (m *MockPacketService) RequestPackets(etherType model.EtherType, priority model.PacketPriority, app model.AppID) error {
	m.Lock()
	defer m.Unlock()
	if m.requestErr != nil {
		return m.requestErr
	}
	m.requests[requestKey(etherType, priority, app)]++
	return nil
}

// CancelPackets withdraws the interception request.
func (m *MockPacketService) CancelPackets(etherType model.EtherType, priority model.PacketPriority, app model.AppID) error {
	m.Lock()
	defer m.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	delete(m.requests, requestKey(etherType, priority, app))
	return nil
}

// Processors returns the number of registered processors.
func (m *MockPacketService) Processors() int {
	m.Lock()
	defer m.Unlock()
	return len(m.processors)
}

// Requests returns the number of active interception requests.
func (m *MockPacketService) Requests() (count int) {
	m.Lock()
	defer m.Unlock()
	for _, n := range m.requests {
		count += n
	}
	return count
}

// HasRequest returns true if the given interception request is active.
func (m *MockPacketService) HasRequest(etherType model.EtherType, priority model.PacketPriority, app model.AppID) bool {
	m.Lock()
	defer m.Unlock()
	return m.requests[requestKey(etherType, priority, app)] > 0
}

// Inject delivers the event to all registered processors, in the order of priorities.
func (m *MockPacketService) Inject(ctx context.Context, event *model.PacketInEvent) {
	m.Lock()
	processors := append([]registeredProcessor{}, m.processors...)
	m.Unlock()
	for _, reg := range processors {
		reg.processor.Process(ctx, event)
	}
}
