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
	"sort"
	"sync"
	"time"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/hashicorp/go-multierror"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// ErrUnknownDevice is returned when a flow rule targets a device that is not connected.
var ErrUnknownDevice = errors.New("device is not connected")

// how long ApplyFlowRules waits for the switch to confirm a flow-mod by default
const defaultFlowModTimeout = 3 * time.Second

// registeredProcessor is a packet processor with its priority.
type registeredProcessor struct {
	processor model.PacketProcessor
	priority  int
}

// interceptRequest is a request to punt frames of some type to the controller.
type interceptRequest struct {
	etherType model.EtherType
	priority  model.PacketPriority
	app       model.AppID
}

// Controller keeps track of connected OpenFlow switches and implements
// the packet-in bus (model.PacketService) and flow programming
// (model.FlowRuleService) on top of them.
type Controller struct {
	Log              logging.Logger
	EchoInterval     time.Duration
	HandshakeTimeout time.Duration
	FlowModTimeout   time.Duration // 0 = wait for the confirmation without a limit

	sync.RWMutex
	switches     map[model.DeviceID]*Switch
	processors   []registeredProcessor
	requests     map[interceptRequest]struct{}
	watchers     []func(device model.DeviceID, connected bool)
	flowWatchers []func(device model.DeviceID, appID uint16, match model.FlowMatch)
}

// NewController is a constructor for Controller.
func NewController(log logging.Logger, echoInterval, handshakeTimeout time.Duration) *Controller {
	return &Controller{
		Log:              log,
		EchoInterval:     echoInterval,
		HandshakeTimeout: handshakeTimeout,
		FlowModTimeout:   defaultFlowModTimeout,
		switches:         make(map[model.DeviceID]*Switch),
		requests:         make(map[interceptRequest]struct{}),
	}
}

// Parse decodes OpenFlow messages for the message stream.
func (c *Controller) Parse(b []byte) (util.Message, error) {
	if len(b) == 0 {
		return nil, errors.New("empty OpenFlow message")
	}
	if b[0] != openflow13.VERSION {
		return nil, errors.Errorf("unsupported OpenFlow version %d", b[0])
	}
	return openflow13.Parse(b)
}

// Serve accepts switch connections until the context is cancelled
// or the listener is closed.
func (c *Controller) Serve(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return errors.Wrap(err, "failed to accept switch connection")
		}
		go c.handleConnection(ctx, conn)
	}
}

// handleConnection performs the OpenFlow handshake and runs the switch.
func (c *Controller) handleConnection(ctx context.Context, conn net.Conn) {
	c.Log.Infof("New OpenFlow connection from %v", conn.RemoteAddr())
	stream := &streamConnection{stream: util.NewMessageStream(conn, c)}

	device, err := c.handshake(stream)
	if err != nil {
		c.Log.Warnf("OpenFlow handshake with %v failed: %v", conn.RemoteAddr(), err)
		stream.Close()
		return
	}
	c.runSwitch(ctx, device, stream)
}

// handshake exchanges hello and features messages, returning the device
// identifier built from the switch datapath ID.
func (c *Controller) handshake(conn connection) (model.DeviceID, error) {
	hello, err := common.NewHello(int(openflow13.VERSION))
	if err != nil {
		return "", err
	}
	conn.Outbound() <- hello

	timeout := time.After(c.HandshakeTimeout)
	for {
		select {
		case msg := <-conn.Inbound():
			switch m := msg.(type) {
			case *common.Hello:
				if m.Version != openflow13.VERSION {
					return "", errors.Errorf("switch requires OpenFlow version %d", m.Version)
				}
				conn.Outbound() <- openflow13.NewFeaturesRequest()
			case *openflow13.SwitchFeatures:
				return DeviceIDFromDPID(m.DPID), nil
			case *openflow13.ErrorMsg:
				return "", errors.Errorf("switch reported error: type=%d code=%d", m.Type, m.Code)
			}
		case err := <-conn.Errors():
			return "", err
		case <-timeout:
			return "", errors.New("handshake timed out")
		}
	}
}

// runSwitch registers the connected switch, replays the interception flows
// and blocks in its receive loop until it disconnects.
func (c *Controller) runSwitch(ctx context.Context, device model.DeviceID, conn connection) {
	sw := newSwitch(c.Log, device, conn, c.EchoInterval, c.dispatch, c.flowRemoved)
	c.addSwitch(sw)
	defer c.removeSwitch(sw)

	c.RLock()
	requests := c.interceptRequests()
	c.RUnlock()
	for _, req := range requests {
		if err := sw.Send(ctx, interceptFlowMod(req.etherType, req.priority, req.app)); err != nil {
			c.Log.Warnf("Failed to install %s interception on %s: %v", req.etherType, device, err)
		}
	}

	if err := sw.run(ctx); err != nil {
		c.Log.Warn(err)
	}
}

func (c *Controller) addSwitch(sw *Switch) {
	c.Lock()
	previous := c.switches[sw.Device()]
	c.switches[sw.Device()] = sw
	watchers := append([]func(model.DeviceID, bool){}, c.watchers...)
	c.Unlock()

	if previous != nil {
		c.Log.Infof("Switch %s reconnected, closing the previous connection", sw.Device())
		previous.Disconnect()
	}
	c.Log.Infof("Switch %s connected", sw.Device())
	for _, cb := range watchers {
		cb(sw.Device(), true)
	}
}

func (c *Controller) removeSwitch(sw *Switch) {
	c.Lock()
	if c.switches[sw.Device()] != sw {
		// replaced by a newer connection
		c.Unlock()
		return
	}
	delete(c.switches, sw.Device())
	watchers := append([]func(model.DeviceID, bool){}, c.watchers...)
	c.Unlock()

	c.Log.Infof("Switch %s disconnected", sw.Device())
	for _, cb := range watchers {
		cb(sw.Device(), false)
	}
}

// Devices returns identifiers of all connected switches, sorted.
func (c *Controller) Devices() (devices []model.DeviceID) {
	c.RLock()
	defer c.RUnlock()
	for device := range c.switches {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices
}

// Close disconnects all switches.
func (c *Controller) Close() {
	c.RLock()
	switches := c.connectedSwitches()
	c.RUnlock()
	for _, sw := range switches {
		sw.Disconnect()
	}
}

// WatchDevices registers callback for switch connection changes.
func (c *Controller) WatchDevices(cb func(device model.DeviceID, connected bool)) {
	c.Lock()
	defer c.Unlock()
	c.watchers = append(c.watchers, cb)
}

// WatchFlowRemovals registers callback for forwarding flows removed by switches,
// i.e. expired or deleted outside of the controller.
func (c *Controller) WatchFlowRemovals(cb func(device model.DeviceID, appID uint16, match model.FlowMatch)) {
	c.Lock()
	defer c.Unlock()
	c.flowWatchers = append(c.flowWatchers, cb)
}

func (c *Controller) flowRemoved(device model.DeviceID, appID uint16, match model.FlowMatch) {
	c.RLock()
	watchers := append([]func(model.DeviceID, uint16, model.FlowMatch){}, c.flowWatchers...)
	c.RUnlock()
	c.Log.Debugf("Flow %s of app %d removed from %s", match.Key(), appID, device)
	for _, cb := range watchers {
		cb(device, appID, match)
	}
}

// dispatch delivers the packet-in event to all processors, in the ascending
// order of their priorities.
func (c *Controller) dispatch(ctx context.Context, event *model.PacketInEvent) {
	c.RLock()
	processors := append([]registeredProcessor{}, c.processors...)
	c.RUnlock()
	for _, reg := range processors {
		reg.processor.Process(ctx, event)
	}
}

// AddProcessor registers packet processor.
func (c *Controller) AddProcessor(processor model.PacketProcessor, priority int) error {
	if processor == nil {
		return errors.New("nil packet processor")
	}
	c.Lock()
	defer c.Unlock()
	for _, reg := range c.processors {
		if reg.processor == processor {
			return errors.Errorf("processor %v is already registered", processor)
		}
	}
	c.processors = append(c.processors, registeredProcessor{processor: processor, priority: priority})
	sort.SliceStable(c.processors, func(i, j int) bool {
		return c.processors[i].priority < c.processors[j].priority
	})
	return nil
}

// RemoveProcessor un-registers packet processor. Removing an unknown
// processor is not an error.
func (c *Controller) RemoveProcessor(processor model.PacketProcessor) error {
	c.Lock()
	defer c.Unlock()
	for i, reg := range c.processors {
		if reg.processor == processor {
			c.processors = append(c.processors[:i], c.processors[i+1:]...)
			break
		}
	}
	return nil
}

// RequestPackets installs interception flow on all connected switches and
// remembers the request for switches connecting later.
func (c *Controller) RequestPackets(etherType model.EtherType, priority model.PacketPriority, app model.AppID) error {
	req := interceptRequest{etherType: etherType, priority: priority, app: app}
	c.Lock()
	c.requests[req] = struct{}{}
	switches := c.connectedSwitches()
	c.Unlock()

	var wasErr error
	for _, sw := range switches {
		if err := sw.Send(context.Background(), interceptFlowMod(etherType, priority, app)); err != nil {
			wasErr = multierror.Append(wasErr, errors.Wrapf(err, "switch %s", sw.Device()))
		}
	}
	return wasErr
}

// CancelPackets removes the interception flow from all connected switches.
func (c *Controller) CancelPackets(etherType model.EtherType, priority model.PacketPriority, app model.AppID) error {
	req := interceptRequest{etherType: etherType, priority: priority, app: app}
	c.Lock()
	delete(c.requests, req)
	switches := c.connectedSwitches()
	c.Unlock()

	var wasErr error
	for _, sw := range switches {
		if err := sw.Send(context.Background(), cancelInterceptFlowMod(etherType, priority, app)); err != nil {
			wasErr = multierror.Append(wasErr, errors.Wrapf(err, "switch %s", sw.Device()))
		}
	}
	return wasErr
}

// ApplyFlowRules sends the rules to their devices and waits until every
// flow-mod is confirmed by a barrier reply or rejected by the switch.
func (c *Controller) ApplyFlowRules(ctx context.Context, rules ...*model.FlowRule) error {
	if c.FlowModTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.FlowModTimeout)
		defer cancel()
	}
	var wasErr error
	for _, rule := range rules {
		c.RLock()
		sw, connected := c.switches[rule.Device]
		c.RUnlock()
		if !connected {
			wasErr = multierror.Append(wasErr, errors.Wrapf(ErrUnknownDevice, "%v", rule))
			continue
		}
		flowMod := forwardingFlowMod(rule)
		if err := sw.SendConfirmed(ctx, flowMod, flowMod.Header.Xid); err != nil {
			wasErr = multierror.Append(wasErr, errors.Wrapf(err, "%v", rule))
		}
	}
	return wasErr
}

// RemoveFlowRulesByAppID deletes forwarding flows of the application
// from all connected switches.
func (c *Controller) RemoveFlowRulesByAppID(ctx context.Context, app model.AppID) error {
	c.RLock()
	switches := c.connectedSwitches()
	c.RUnlock()

	var wasErr error
	for _, sw := range switches {
		if err := sw.Send(ctx, deleteByAppFlowMod(app)); err != nil {
			wasErr = multierror.Append(wasErr, errors.Wrapf(err, "switch %s", sw.Device()))
		}
	}
	return wasErr
}

// connectedSwitches returns switches ordered by device ID. Call with the lock held.
func (c *Controller) connectedSwitches() (switches []*Switch) {
	for _, sw := range c.switches {
		switches = append(switches, sw)
	}
	sort.Slice(switches, func(i, j int) bool { return switches[i].Device() < switches[j].Device() })
	return switches
}

// interceptRequests returns active interception requests. Call with the lock held.
func (c *Controller) interceptRequests() (requests []interceptRequest) {
	for req := range c.requests {
		requests = append(requests, req)
	}
	return requests
}
