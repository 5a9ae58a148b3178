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

package openflow

import (
	"context"
	"net"

	"github.com/ligato/cn-infra/infra"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// Plugin runs OpenFlow 1.3 controller. Connected switches are exposed
// through the packet-in bus, flow programming and device notification APIs
// of the reactive forwarding application.
type Plugin struct {
	Deps

	config     *Config
	controller *Controller
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps defines dependencies of the OpenFlow plugin.
type Deps struct {
	infra.PluginDeps
}

// Init loads the configuration and prepares the controller.
func (p *Plugin) Init() (err error) {
	if p.config == nil {
		p.config = DefaultConfig()
		if p.Cfg != nil {
			if _, err = p.Cfg.LoadValue(p.config); err != nil {
				return err
			}
		}
	}
	if err = p.config.Validate(); err != nil {
		return errors.Wrap(err, "invalid OpenFlow configuration")
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.controller = NewController(p.Log.NewLogger("-controller"), p.config.EchoInterval, p.config.HandshakeTimeout)
	p.controller.FlowModTimeout = p.config.FlowModTimeout
	return nil
}

// AfterInit starts accepting switch connections.
func (p *Plugin) AfterInit() (err error) {
	p.listener, err = net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", p.config.ListenAddr)
	}
	p.Log.Infof("Listening for OpenFlow switches on %v", p.listener.Addr())
	go func() {
		if err := p.controller.Serve(p.ctx, p.listener); err != nil {
			p.Log.Error(err)
		}
	}()
	return nil
}

// Close stops the listener and disconnects all switches.
func (p *Plugin) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	var err error
	if p.listener != nil {
		err = p.listener.Close()
	}
	if p.controller != nil {
		p.controller.Close()
	}
	return err
}

// Devices returns identifiers of all connected switches.
func (p *Plugin) Devices() []model.DeviceID {
	return p.controller.Devices()
}

// WatchDevices registers callback for switch connection changes.
func (p *Plugin) WatchDevices(cb func(device model.DeviceID, connected bool)) {
	p.controller.WatchDevices(cb)
}

// WatchFlowRemovals registers callback for forwarding flows removed by switches.
func (p *Plugin) WatchFlowRemovals(cb func(device model.DeviceID, appID uint16, match model.FlowMatch)) {
	p.controller.WatchFlowRemovals(cb)
}

// AddProcessor registers packet processor.
func (p *Plugin) AddProcessor(processor model.PacketProcessor, priority int) error {
	return p.controller.AddProcessor(processor, priority)
}

// RemoveProcessor un-registers packet processor.
func (p *Plugin) RemoveProcessor(processor model.PacketProcessor) error {
	return p.controller.RemoveProcessor(processor)
}

// RequestPackets asks all switches to punt frames of the given type.
func (p *Plugin) RequestPackets(etherType model.EtherType, priority model.PacketPriority, app model.AppID) error {
	return p.controller.RequestPackets(etherType, priority, app)
}

// CancelPackets withdraws the interception request.
func (p *Plugin) CancelPackets(etherType model.EtherType, priority model.PacketPriority, app model.AppID) error {
	return p.controller.CancelPackets(etherType, priority, app)
}

// ApplyFlowRules installs flow rules.
func (p *Plugin) ApplyFlowRules(ctx context.Context, rules ...*model.FlowRule) error {
	return p.controller.ApplyFlowRules(ctx, rules...)
}

// RemoveFlowRulesByAppID removes flow rules of the application.
func (p *Plugin) RemoveFlowRulesByAppID(ctx context.Context, app model.AppID) error {
	return p.controller.RemoveFlowRulesByAppID(ctx, app)
}
