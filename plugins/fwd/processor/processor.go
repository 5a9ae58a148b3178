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

package processor

import (
	"context"

	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/reactivefwd/plugins/fwd/config"
	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwd/installer"
	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

const processorName = "reactivefwd-processor"

// Processor is the packet-in consumer of the reactive forwarding application.
//
// For every IPv4 frame it resolves both endpoints, and if the frame was received
// by the device where the destination host is attached, it selects a path between
// the source and destination edges and installs a flow rule forwarding the rest
// of the flow without the controller. LLDP frames are ignored, ARP frames
// are only reported.
//
// Processor holds no per-flow state and can be invoked concurrently.
type Processor struct {
	Deps
}

// Deps lists dependencies of the Processor.
type Deps struct {
	Log       logging.Logger
	Config    *config.Config
	Resolver  EndpointResolver
	Selector  PathSelector
	Installer FlowInstaller
	Events    events.Sink
}

// EndpointResolver maps MAC addresses onto known hosts.
type EndpointResolver interface {
	Resolve(mac model.MAC) (host *model.Host, found bool)
}

// PathSelector selects one path between two devices.
type PathSelector interface {
	Select(src, dst model.DeviceID) (path *model.Path, found bool)
}

// FlowInstaller installs forwarding rules.
type FlowInstaller interface {
	Install(ctx context.Context, device model.DeviceID, inPort, outPort model.PortNumber,
		srcMAC, dstMAC model.MAC) (installer.Result, error)
}

// Init initializes the processor.
func (p *Processor) Init() error {
	if p.Config == nil {
		p.Config = config.DefaultConfig()
	}
	return nil
}

// String identifies the processor for the packet service and in the logs.
func (p *Processor) String() string {
	return processorName
}

// Process handles one packet-in event.
func (p *Processor) Process(ctx context.Context, event *model.PacketInEvent) {
	frame, err := Classify(event)
	if err != nil {
		attrs := events.Attrs{events.AttrError: err.Error()}
		if event != nil {
			attrs[events.AttrDevice] = string(event.Receiver.Device)
			attrs[events.AttrPort] = uint32(event.Receiver.Port)
		}
		events.Emit(p.Events, events.DecodeFailed, attrs)
		return
	}

	switch frame.EtherType {
	case model.EtherTypeIPv4:
		p.processIPv4(ctx, event.Receiver, frame)
	case model.EtherTypeARP:
		events.Emit(p.Events, events.ARPObserved, frameAttrs(event.Receiver, frame))
	default:
		events.Emit(p.Events, events.FrameIgnored, frameAttrs(event.Receiver, frame))
	}
}

// processIPv4 runs the forwarding decision for an IPv4 frame.
func (p *Processor) processIPv4(ctx context.Context, receiver model.ConnectPoint, frame *model.Frame) {
	dstHost, found := p.Resolver.Resolve(frame.DstMAC)
	if !found {
		p.Log.Debugf("Destination %s of %v is unknown", frame.DstMAC, frame)
		return
	}
	srcHost, found := p.Resolver.Resolve(frame.SrcMAC)
	if !found {
		p.Log.Debugf("Source %s of %v is unknown", frame.SrcMAC, frame)
		return
	}

	if receiver.Device == srcHost.Location.Device {
		events.Emit(p.Events, events.IngressEdge, frameAttrs(receiver, frame))
	}
	if receiver.Device != dstHost.Location.Device {
		events.Emit(p.Events, events.TransitDevice, frameAttrs(receiver, frame))
		return
	}

	srcDevice, dstDevice := srcHost.Location.Device, dstHost.Location.Device
	path, found := p.Selector.Select(srcDevice, dstDevice)
	if !found {
		events.Emit(p.Events, events.NoRoute, events.Attrs{
			events.AttrSrcDev: string(srcDevice),
			events.AttrDstDev: string(dstDevice),
			events.AttrSrcMAC: frame.SrcMAC.String(),
			events.AttrDstMAC: frame.DstMAC.String(),
		})
		return
	}
	events.Emit(p.Events, events.PathSelected, events.Attrs{
		events.AttrPath:     path.String(),
		events.AttrHopCount: path.HopCount(),
	})

	outPort, install := p.outputPort(receiver, dstHost, path)
	if !install {
		events.Emit(p.Events, events.PolicyDeclined, frameAttrs(receiver, frame))
		return
	}

	_, err := p.Installer.Install(ctx, receiver.Device, receiver.Port, outPort, frame.SrcMAC, frame.DstMAC)
	if err != nil {
		attrs := frameAttrs(receiver, frame)
		attrs[events.AttrOutPort] = uint32(outPort)
		attrs[events.AttrError] = err.Error()
		events.Emit(p.Events, events.InstallFailed, attrs)
	}
}

// outputPort applies the edge-installation policy: it decides whether a rule
// should be installed at the receiving device and with which output port.
func (p *Processor) outputPort(receiver model.ConnectPoint, dstHost *model.Host,
	path *model.Path) (outPort model.PortNumber, install bool) {

	switch p.Config.EdgePolicy {
	case config.FixedEdgePolicy:
		if receiver.Device != model.DeviceID(p.Config.FixedDevice) {
			return 0, false
		}
		return model.PortNumber(p.Config.FixedPort), true
	case config.HostEdgePolicy:
		return dstHost.Location.Port, true
	default:
		if path.IsEmpty() {
			return dstHost.Location.Port, true
		}
		return path.Dst().Port, true
	}
}

func frameAttrs(receiver model.ConnectPoint, frame *model.Frame) events.Attrs {
	return events.Attrs{
		events.AttrDevice: string(receiver.Device),
		events.AttrPort:   uint32(receiver.Port),
		events.AttrSrcMAC: frame.SrcMAC.String(),
		events.AttrDstMAC: frame.DstMAC.String(),
		events.AttrType:   frame.EtherType.String(),
	}
}
