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

package flowrules

import (
	"context"
	"sync"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// MockFlowRuleService is a mock implementation of flow programming.
// It keeps the flow tables of all devices in memory.
type MockFlowRuleService struct {
	sync.Mutex

	tables       map[string]*model.FlowRule // rule key -> rule
	applyCalls   []*model.FlowRule
	removeCalls  int
	applyErr     error
	removeErr    error
	applyBlocker chan struct{}
}

// NewMockFlowRuleService is a constructor for MockFlowRuleService.
func NewMockFlowRuleService() *MockFlowRuleService {
	return &MockFlowRuleService{
		tables: make(map[string]*model.FlowRule),
	}
}

// SetApplyError makes ApplyFlowRules fail with the given error (nil to clear).
func (m *MockFlowRuleService) SetApplyError(err error) {
	m.Lock()
	defer m.Unlock()
	m.applyErr = err
}

// SetRemoveError makes RemoveFlowRulesByAppID fail with the given error (nil to clear).
func (m *MockFlowRuleService) SetRemoveError(err error) {
	m.Lock()
	defer m.Unlock()
	m.removeErr = err
}

// BlockApply makes ApplyFlowRules wait until the returned channel is closed.
func (m *MockFlowRuleService) BlockApply() chan struct{} {
	m.Lock()
	defer m.Unlock()
	m.applyBlocker = make(chan struct{})
	return m.applyBlocker
}

// ApplyFlowRules records the rules.
func (m *MockFlowRuleService) ApplyFlowRules(ctx context.Context, rules ...*model.FlowRule) error {
	m.Lock()
	blocker := m.applyBlocker
	m.applyCalls = append(m.applyCalls, rules...)
	m.Unlock()

	if blocker != nil {
		select {
		case <-blocker:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.Lock()
	defer m.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	for _, rule := range rules {
		ruleCopy := *rule
		m.tables[rule.Key()] = &ruleCopy
	}
	return nil
}

// RemoveFlowRulesByAppID removes all rules of the application.
func (m *MockFlowRuleService) RemoveFlowRulesByAppID(ctx context.Context, app model.AppID) error {
	m.Lock()
	defer m.Unlock()
	m.removeCalls++
	if m.removeErr != nil {
		return m.removeErr
	}
	for key, rule := range m.tables {
		if rule.AppID.ID == app.ID {
			delete(m.tables, key)
		}
	}
	return nil
}

// ApplyCalls returns all rules passed to ApplyFlowRules so far.
func (m *MockFlowRuleService) ApplyCalls() []*model.FlowRule {
	m.Lock()
	defer m.Unlock()
	return append([]*model.FlowRule{}, m.applyCalls...)
}

// RemoveCalls returns the number of RemoveFlowRulesByAppID calls.
func (m *MockFlowRuleService) RemoveCalls() int {
	m.Lock()
	defer m.Unlock()
	return m.removeCalls
}

// Rules returns rules currently installed on the given device.
func (m *MockFlowRuleService) Rules(device model.DeviceID) (rules []*model.FlowRule) {
	m.Lock()
	defer m.Unlock()
	for _, rule := range m.tables {
		if rule.Device == device {
			rules = append(rules, rule)
		}
	}
	return rules
}

// OwnedRules returns the number of rules owned by the application across all devices.
func (m *MockFlowRuleService) OwnedRules(app model.AppID) (count int) {
	m.Lock()
	defer m.Unlock()
	for _, rule := range m.tables {
		if rule.AppID.ID == app.ID {
			count++
		}
	}
	return count
}
