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

package installer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/config"
	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// ErrNoFlowService is returned when the installer has no flow programming
// service to submit rules to.
var ErrNoFlowService = errors.New("flow rule service is not available")

// Result tells what Install did.
type Result int

const (
	// Installed means that the rule was submitted to the device.
	Installed Result = iota

	// Skipped means that an identical rule is already installed or
	// its installation is in progress.
	Skipped
)

// String converts Result into a human-readable string.
func (r Result) String() string {
	switch r {
	case Installed:
		return "installed"
	case Skipped:
		return "skipped"
	}
	return "INVALID"
}

type entryState int

const (
	inFlight entryState = iota
	installed
)

// entry is a record of the installed-rule cache.
type entry struct {
	rule    *model.FlowRule
	state   entryState
	expires time.Time // zero for permanent rules
}

// live returns false for installed timed rules that the device may have
// already expired.
func (e *entry) live(now time.Time) bool {
	return e.state == inFlight || e.expires.IsZero() || now.Before(e.expires)
}

// Installer converts forwarding decisions into flow rules and submits them.
//
// Installer keeps a cache of installed rules keyed by (device, match).
// At most one installation per key is in progress at any time, repeated
// decisions for an already installed rule are skipped. Entries of timed
// rules are dropped once their timeout elapses, entries of rules removed
// by devices are dropped through Removed.
type Installer struct {
	Deps

	sync.Mutex
	entries map[string]*entry // rule key -> entry
}

// Deps lists dependencies of the Installer.
type Deps struct {
	Log             logging.Logger
	Config          *config.Config
	FlowRuleService model.FlowRuleService
	Events          events.Sink
}

// Init initializes the installer.
func (i *Installer) Init() error {
	if i.Config == nil {
		i.Config = config.DefaultConfig()
	}
	i.entries = make(map[string]*entry)
	return nil
}

// BuildRule returns the flow rule forwarding frames from <srcMAC> to <dstMAC>
// received on <inPort> of <device> out of <outPort>.
func (i *Installer) BuildRule(device model.DeviceID, inPort, outPort model.PortNumber,
	srcMAC, dstMAC model.MAC) *model.FlowRule {

	rule := &model.FlowRule{
		Device: device,
		Match: model.FlowMatch{
			InPort: inPort,
			SrcMAC: srcMAC,
			DstMAC: dstMAC,
		},
		OutPort:   outPort,
		Priority:  i.Config.FlowPriority,
		Permanent: i.Config.Permanent,
		AppID:     i.Config.App(),
		TableID:   i.Config.FlowTable,
	}
	if !rule.Permanent {
		rule.Timeout = i.Config.FlowTimeout
	}
	return rule
}

// Install builds the rule and submits it unless an identical rule is already
// installed or being installed. A rule with the same match but a different
// output port replaces the installed one.
func (i *Installer) Install(ctx context.Context, device model.DeviceID, inPort, outPort model.PortNumber,
	srcMAC, dstMAC model.MAC) (Result, error) {

	if i.FlowRuleService == nil {
		return Skipped, ErrNoFlowService
	}
	rule := i.BuildRule(device, inPort, outPort, srcMAC, dstMAC)
	key := rule.Key()

	i.Lock()
	if i.entries == nil {
		i.entries = make(map[string]*entry)
	}
	if existing, cached := i.entries[key]; cached && existing.live(time.Now()) {
		if existing.state == inFlight || existing.rule.OutPort == outPort {
			i.Unlock()
			i.Log.Debugf("Skipping %v (already %s)", rule, stateName(existing.state))
			events.Emit(i.Events, events.RuleSkipped, ruleAttrs(rule))
			return Skipped, nil
		}
		i.Log.Infof("Output port changed for %s/%s: %d -> %d",
			device, rule.Match.Key(), existing.rule.OutPort, outPort)
	}
	e := &entry{rule: rule, state: inFlight}
	i.entries[key] = e
	i.Unlock()

	err := i.FlowRuleService.ApplyFlowRules(ctx, rule)

	i.Lock()
	defer i.Unlock()
	current := i.entries[key] == e
	if err != nil {
		if current {
			delete(i.entries, key)
		}
		return Skipped, errors.Wrapf(err, "failed to install %v", rule)
	}
	if !current {
		// cache was invalidated meanwhile, e.g. by Stop
		i.Log.Debugf("Installed %v, but the cache entry was dropped meanwhile", rule)
		return Installed, nil
	}
	e.state = installed
	if !rule.Permanent && rule.Timeout > 0 {
		e.expires = time.Now().Add(rule.Timeout)
	}
	events.Emit(i.Events, events.RuleInstalled, ruleAttrs(rule))
	return Installed, nil
}

// Invalidate forgets all cached rules. In-flight installations finish but
// their outcome is not recorded.
func (i *Installer) Invalidate() {
	i.Lock()
	defer i.Unlock()
	i.entries = make(map[string]*entry)
}

// Forget removes rules installed on the given device from the cache,
// e.g. after the device reconnected with empty flow tables.
func (i *Installer) Forget(device model.DeviceID) {
	i.Lock()
	defer i.Unlock()
	for key, e := range i.entries {
		if e.rule.Device == device {
			delete(i.entries, key)
		}
	}
}

// Removed drops the cache entry of a rule that the device removed, so that
// the next packet-in of the flow installs it again. Entries of in-flight
// installations are kept.
func (i *Installer) Removed(device model.DeviceID, match model.FlowMatch) {
	key := (&model.FlowRule{Device: device, Match: match}).Key()
	i.Lock()
	e, cached := i.entries[key]
	if !cached || e.state != installed {
		i.Unlock()
		return
	}
	delete(i.entries, key)
	i.Unlock()
	events.Emit(i.Events, events.RuleRemoved, ruleAttrs(e.rule))
}

// Installed returns a snapshot of successfully installed rules, ordered by key.
func (i *Installer) Installed() (rules []*model.FlowRule) {
	i.Lock()
	defer i.Unlock()
	now := time.Now()
	for _, e := range i.entries {
		if e.state == installed && e.live(now) {
			rules = append(rules, e.rule)
		}
	}
	sort.Slice(rules, func(a, b int) bool {
		return rules[a].Key() < rules[b].Key()
	})
	return rules
}

func stateName(state entryState) string {
	if state == inFlight {
		return "in-flight"
	}
	return "installed"
}

func ruleAttrs(rule *model.FlowRule) events.Attrs {
	return events.Attrs{
		events.AttrDevice:  string(rule.Device),
		events.AttrPort:    uint32(rule.Match.InPort),
		events.AttrSrcMAC:  rule.Match.SrcMAC.String(),
		events.AttrDstMAC:  rule.Match.DstMAC.String(),
		events.AttrOutPort: uint32(rule.OutPort),
	}
}
