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

package processor_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	"github.com/contiv/reactivefwd/mock/flowrules"
	"github.com/contiv/reactivefwd/mock/hostservice"
	"github.com/contiv/reactivefwd/mock/topology"
	"github.com/contiv/reactivefwd/plugins/fwd/config"
	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwd/installer"
	"github.com/contiv/reactivefwd/plugins/fwd/model"
	"github.com/contiv/reactivefwd/plugins/fwd/pathsel"
	"github.com/contiv/reactivefwd/plugins/fwd/processor"
	"github.com/contiv/reactivefwd/plugins/fwd/resolver"
)

const (
	device1 = model.DeviceID("of:0000000000000001")
	device2 = model.DeviceID("of:0000000000000002")
	device3 = model.DeviceID("of:0000000000000003")
)

var (
	macAA = model.MustParseMAC("00:00:00:00:00:aa")
	macBB = model.MustParseMAC("00:00:00:00:00:bb")
	macCC = model.MustParseMAC("00:00:00:00:00:cc")
)

type testEnv struct {
	hosts     *hostservice.MockHostService
	topo      *topology.MockTopologyService
	flows     *flowrules.MockFlowRuleService
	history   *events.History
	installer *installer.Installer
	processor *processor.Processor
}

func newTestEnv(cfg *config.Config) *testEnv {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	env := &testEnv{
		hosts:   hostservice.NewMockHostService(),
		topo:    topology.NewMockTopologyService(),
		flows:   flowrules.NewMockFlowRuleService(),
		history: events.NewHistory(100),
	}
	log := logrus.DefaultLogger()
	env.installer = &installer.Installer{Deps: installer.Deps{
		Log:             log,
		Config:          cfg,
		FlowRuleService: env.flows,
		Events:          env.history,
	}}
	Expect(env.installer.Init()).To(Succeed())
	env.processor = &processor.Processor{Deps: processor.Deps{
		Log:    log,
		Config: cfg,
		Resolver: &resolver.Resolver{Deps: resolver.Deps{
			Log:         log,
			HostService: env.hosts,
			Events:      env.history,
		}},
		Selector: &pathsel.Selector{Deps: pathsel.Deps{
			Log:             log,
			TopologyService: env.topo,
		}},
		Installer: env.installer,
		Events:    env.history,
	}}
	Expect(env.processor.Init()).To(Succeed())

	// AA attached at D1, BB attached at D2, one path D1 -> D2 with last link into D2 port 7
	env.hosts.AddHost(macAA, model.ConnectPoint{Device: device1, Port: 1})
	env.hosts.AddHost(macBB, model.ConnectPoint{Device: device2, Port: 4})
	env.topo.SetPaths(device1, device2, topology.NewPath(string(device1), 2, string(device2), 7))
	return env
}

func ipv4Event(device model.DeviceID, port model.PortNumber, src, dst model.MAC) *model.PacketInEvent {
	return &model.PacketInEvent{
		Frame:    &model.Frame{SrcMAC: src, DstMAC: dst, EtherType: model.EtherTypeIPv4},
		Receiver: model.ConnectPoint{Device: device, Port: port},
	}
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, ls...)
	Expect(err).To(BeNil())
	return buf.Bytes()
}

func rawIPv4Frame(src, dst model.MAC) []byte {
	return serialize(
		&layers.Ethernet{
			SrcMAC:       src.HardwareAddr(),
			DstMAC:       dst.HardwareAddr(),
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 0, 2),
		},
		gopacket.Payload([]byte("hello")),
	)
}

// TestInstallAtDestinationEdge covers the basic scenario: frame AA -> BB
// received at D2 port 3 gets a rule at D2 matching (AA, BB, 3) with output
// port of the path's last link (7).
func TestInstallAtDestinationEdge(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)

	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))

	calls := env.flows.ApplyCalls()
	Expect(calls).To(HaveLen(1))
	rule := calls[0]
	Expect(rule.Device).To(Equal(device2))
	Expect(rule.Match.SrcMAC).To(Equal(macAA))
	Expect(rule.Match.DstMAC).To(Equal(macBB))
	Expect(rule.Match.InPort).To(BeEquivalentTo(3))
	Expect(rule.OutPort).To(BeEquivalentTo(7))
	Expect(rule.Priority).To(BeEquivalentTo(20))
	Expect(rule.Permanent).To(BeTrue())
	Expect(rule.TableID).To(BeEquivalentTo(0))
	Expect(env.history.Count(events.RuleInstalled)).To(Equal(1))
	Expect(env.history.Count(events.PathSelected)).To(Equal(1))
	Expect(env.history.Count(events.IngressEdge)).To(Equal(0))
}

func TestUnresolvedDestination(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)
	env.hosts.RemoveHost(macBB)

	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))

	Expect(env.flows.ApplyCalls()).To(BeEmpty())
	Expect(env.topo.Queries()).To(Equal(0))
	Expect(env.history.Count(events.EndpointUnresolved)).To(Equal(1))
	ev, _ := env.history.Last(events.EndpointUnresolved)
	Expect(ev.Attrs[events.AttrMAC]).To(Equal(macBB.String()))
}

func TestUnresolvedSource(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)

	env.processor.Process(context.Background(), ipv4Event(device2, 3, macCC, macBB))

	Expect(env.flows.ApplyCalls()).To(BeEmpty())
	Expect(env.history.Count(events.EndpointUnresolved)).To(Equal(1))
	ev, _ := env.history.Last(events.EndpointUnresolved)
	Expect(ev.Attrs[events.AttrMAC]).To(Equal(macCC.String()))
}

func TestNoRoute(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)
	env.topo.SetPaths(device1, device2)

	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))

	Expect(env.flows.ApplyCalls()).To(BeEmpty())
	Expect(env.history.Count(events.NoRoute)).To(Equal(1))
}

func TestTransitAndIngressDevices(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)

	// received at the source edge
	env.processor.Process(context.Background(), ipv4Event(device1, 1, macAA, macBB))
	Expect(env.history.Count(events.IngressEdge)).To(Equal(1))
	Expect(env.history.Count(events.TransitDevice)).To(Equal(1))

	// received in the middle of the network
	env.processor.Process(context.Background(), ipv4Event(device3, 5, macAA, macBB))
	Expect(env.history.Count(events.TransitDevice)).To(Equal(2))

	Expect(env.flows.ApplyCalls()).To(BeEmpty())
	Expect(env.topo.Queries()).To(Equal(0))
}

func TestSameDeviceDelivery(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)
	env.hosts.AddHost(macCC, model.ConnectPoint{Device: device2, Port: 9})

	env.processor.Process(context.Background(), ipv4Event(device2, 9, macCC, macBB))

	calls := env.flows.ApplyCalls()
	Expect(calls).To(HaveLen(1))
	Expect(calls[0].Match.InPort).To(BeEquivalentTo(9))
	Expect(calls[0].OutPort).To(BeEquivalentTo(4))
	Expect(env.history.Count(events.IngressEdge)).To(Equal(1))
	Expect(env.topo.Queries()).To(Equal(0))
}

func TestNonIPv4Frames(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)

	for _, etherType := range []model.EtherType{model.EtherTypeARP, model.EtherTypeLLDP, model.EtherTypeOther} {
		event := ipv4Event(device2, 3, macAA, macBB)
		event.Frame.EtherType = etherType
		env.processor.Process(context.Background(), event)
	}

	Expect(env.flows.ApplyCalls()).To(BeEmpty())
	Expect(env.hosts.Lookups()).To(Equal(0))
	Expect(env.history.Count(events.ARPObserved)).To(Equal(1))
	Expect(env.history.Count(events.FrameIgnored)).To(Equal(2))
}

func TestRawFrames(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)

	event := &model.PacketInEvent{
		Receiver: model.ConnectPoint{Device: device2, Port: 3},
		Raw:      rawIPv4Frame(macAA, macBB),
	}
	env.processor.Process(context.Background(), event)
	calls := env.flows.ApplyCalls()
	Expect(calls).To(HaveLen(1))
	Expect(calls[0].OutPort).To(BeEquivalentTo(7))

	arp := serialize(
		&layers.Ethernet{
			SrcMAC:       macAA.HardwareAddr(),
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   macAA.HardwareAddr(),
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 0, 2},
		},
	)
	env.processor.Process(context.Background(), &model.PacketInEvent{
		Receiver: model.ConnectPoint{Device: device2, Port: 3},
		Raw:      arp,
	})
	Expect(env.history.Count(events.ARPObserved)).To(Equal(1))
	Expect(env.flows.ApplyCalls()).To(HaveLen(1))

	// truncated payload
	env.processor.Process(context.Background(), &model.PacketInEvent{
		Receiver: model.ConnectPoint{Device: device2, Port: 3},
		Raw:      []byte{0x00, 0x01, 0x02},
	})
	Expect(env.history.Count(events.DecodeFailed)).To(Equal(1))

	// no payload at all
	env.processor.Process(context.Background(), &model.PacketInEvent{
		Receiver: model.ConnectPoint{Device: device2, Port: 3},
	})
	Expect(env.history.Count(events.DecodeFailed)).To(Equal(2))
	Expect(env.flows.ApplyCalls()).To(HaveLen(1))
}

func TestClassifyVLAN(t *testing.T) {
	RegisterTestingT(t)

	raw := serialize(
		&layers.Ethernet{
			SrcMAC:       macAA.HardwareAddr(),
			DstMAC:       macBB.HardwareAddr(),
			EthernetType: layers.EthernetTypeDot1Q,
		},
		&layers.Dot1Q{
			VLANIdentifier: 10,
			Type:           layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 0, 2),
		},
	)
	frame, err := processor.Classify(&model.PacketInEvent{Raw: raw})
	Expect(err).To(BeNil())
	Expect(frame.EtherType).To(Equal(model.EtherTypeIPv4))
	Expect(frame.SrcMAC).To(Equal(macAA))
	Expect(frame.DstMAC).To(Equal(macBB))

	_, err = processor.Classify(nil)
	Expect(err).ToNot(BeNil())
}

func TestInstallFailure(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)
	env.flows.SetApplyError(errors.New("switch disconnected"))

	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))
	Expect(env.history.Count(events.InstallFailed)).To(Equal(1))
	Expect(env.installer.Installed()).To(BeEmpty())

	// next packet-in of the same flow re-triggers the installation
	env.flows.SetApplyError(nil)
	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))
	Expect(env.flows.ApplyCalls()).To(HaveLen(2))
	Expect(env.installer.Installed()).To(HaveLen(1))
}

func TestRepeatedPacketIns(t *testing.T) {
	RegisterTestingT(t)
	env := newTestEnv(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))
		}()
	}
	wg.Wait()

	Expect(env.flows.ApplyCalls()).To(HaveLen(1))
	Expect(env.history.Count(events.RuleSkipped)).To(Equal(19))
}

func TestHostEdgePolicy(t *testing.T) {
	RegisterTestingT(t)
	cfg := config.DefaultConfig()
	cfg.EdgePolicy = config.HostEdgePolicy
	env := newTestEnv(cfg)

	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))
	calls := env.flows.ApplyCalls()
	Expect(calls).To(HaveLen(1))
	Expect(calls[0].OutPort).To(BeEquivalentTo(4))
}

func TestFixedEdgePolicy(t *testing.T) {
	RegisterTestingT(t)
	cfg := config.DefaultConfig()
	cfg.EdgePolicy = config.FixedEdgePolicy
	cfg.FixedDevice = string(device3)
	cfg.FixedPort = 2
	env := newTestEnv(cfg)

	// D2 is the destination edge, but not the fixed device
	env.processor.Process(context.Background(), ipv4Event(device2, 3, macAA, macBB))
	Expect(env.flows.ApplyCalls()).To(BeEmpty())
	Expect(env.history.Count(events.PolicyDeclined)).To(Equal(1))

	// destination attached to the fixed device
	env.hosts.AddHost(macCC, model.ConnectPoint{Device: device3, Port: 6})
	env.topo.SetPaths(device1, device3, topology.NewPath(string(device1), 3, string(device3), 1))
	env.processor.Process(context.Background(), ipv4Event(device3, 1, macAA, macCC))
	calls := env.flows.ApplyCalls()
	Expect(calls).To(HaveLen(1))
	Expect(calls[0].Device).To(Equal(device3))
	Expect(calls[0].OutPort).To(BeEquivalentTo(2))
}
