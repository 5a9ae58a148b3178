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
	"sync"
	"testing"
	"time"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/protocol"
	"github.com/contiv/libOpenflow/util"
	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

var testApp = model.AppID{ID: 0x1f, Name: "reactivefwd"}

// fakeConnection is an in-memory connection to a switch.
type fakeConnection struct {
	outbound chan util.Message
	inbound  chan util.Message
	errs     chan error

	sync.Mutex
	closed bool
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		outbound: make(chan util.Message, 100),
		inbound:  make(chan util.Message, 100),
		errs:     make(chan error, 1),
	}
}

func (c *fakeConnection) Outbound() chan<- util.Message { return c.outbound }
func (c *fakeConnection) Inbound() <-chan util.Message  { return c.inbound }
func (c *fakeConnection) Errors() <-chan error          { return c.errs }

func (c *fakeConnection) Close() {
	c.Lock()
	defer c.Unlock()
	c.closed = true
}

func (c *fakeConnection) isClosed() bool {
	c.Lock()
	defer c.Unlock()
	return c.closed
}

// sent returns the next message sent to the switch.
func (c *fakeConnection) sent() util.Message {
	select {
	case msg := <-c.outbound:
		return msg
	case <-time.After(time.Second):
		return nil
	}
}

// recordingProcessor records the order in which processors were invoked.
type recordingProcessor struct {
	name  string
	order *[]string
	lock  *sync.Mutex
}

func (p *recordingProcessor) Process(ctx context.Context, event *model.PacketInEvent) {
	p.lock.Lock()
	defer p.lock.Unlock()
	*p.order = append(*p.order, p.name)
}

// answerFlowMod reads the next flow-mod and the barrier request following it,
// and answers them the way a switch would: with an error message when the
// flow-mod is rejected, then with the barrier reply.
func answerFlowMod(conn *fakeConnection, reject bool) *openflow13.FlowMod {
	msg := conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&openflow13.FlowMod{}))
	flowMod := msg.(*openflow13.FlowMod)

	msg = conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&common.Header{}))
	barrier := msg.(*common.Header)
	Expect(barrier.Type).To(BeEquivalentTo(openflow13.Type_BarrierRequest))

	if reject {
		errMsg := &openflow13.ErrorMsg{Type: 5, Code: 0} // OFPET_FLOW_MOD_FAILED
		errMsg.Header.Xid = flowMod.Header.Xid
		conn.inbound <- errMsg
	}
	reply := *barrier
	reply.Type = openflow13.Type_BarrierReply
	conn.inbound <- &reply
	return flowMod
}

// applyAsync runs ApplyFlowRules in the background.
func applyAsync(ctx context.Context, c *Controller, rules ...*model.FlowRule) chan error {
	result := make(chan error, 1)
	go func() {
		result <- c.ApplyFlowRules(ctx, rules...)
	}()
	return result
}

func testRule(device model.DeviceID) *model.FlowRule {
	return &model.FlowRule{
		Device:    device,
		Match:     model.FlowMatch{InPort: 3, SrcMAC: model.MustParseMAC("00:00:00:00:00:aa"), DstMAC: model.MustParseMAC("00:00:00:00:00:bb")},
		OutPort:   7,
		Priority:  20,
		Permanent: true,
		AppID:     testApp,
	}
}

func newTestController() *Controller {
	return NewController(logrus.DefaultLogger(), 0, time.Second)
}

// connectSwitch runs a switch over a fake connection and waits until it is registered.
func connectSwitch(ctx context.Context, c *Controller, device model.DeviceID) *fakeConnection {
	conn := newFakeConnection()
	go c.runSwitch(ctx, device, conn)
	Eventually(c.Devices).Should(ContainElement(device))
	return conn
}

func TestHandshake(t *testing.T) {
	RegisterTestingT(t)
	c := newTestController()
	conn := newFakeConnection()

	type result struct {
		device model.DeviceID
		err    error
	}
	done := make(chan result, 1)
	go func() {
		device, err := c.handshake(conn)
		done <- result{device, err}
	}()

	msg := conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&common.Hello{}))

	hello, err := common.NewHello(int(openflow13.VERSION))
	Expect(err).To(BeNil())
	conn.inbound <- hello
	msg = conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&common.Header{}))
	Expect(msg.(*common.Header).Type).To(BeEquivalentTo(openflow13.Type_FeaturesRequest))

	conn.inbound <- &openflow13.SwitchFeatures{DPID: net.HardwareAddr{0, 0, 0, 0, 0, 0, 0, 0x2a}}
	var res result
	Eventually(done).Should(Receive(&res))
	Expect(res.err).To(BeNil())
	Expect(res.device).To(BeEquivalentTo("of:000000000000002a"))
}

func TestHandshakeTimeout(t *testing.T) {
	RegisterTestingT(t)
	c := NewController(logrus.DefaultLogger(), 0, 50*time.Millisecond)
	_, err := c.handshake(newFakeConnection())
	Expect(err).ToNot(BeNil())
}

func TestInterceptReplayedOnConnect(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()

	// requested before any switch is connected
	Expect(c.RequestPackets(model.EtherTypeIPv4, model.ReactivePriority, testApp)).To(Succeed())

	conn := connectSwitch(ctx, c, "of:0000000000000001")
	msg := conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&openflow13.FlowMod{}))
	flowMod := msg.(*openflow13.FlowMod)
	Expect(flowMod.Command).To(BeEquivalentTo(openflow13.FC_ADD))
	Expect(flowMod.Cookie).To(Equal(interceptCookie(testApp)))
	Expect(flowMod.Priority).To(BeEquivalentTo(model.ReactivePriority))

	// cancelled on connected switches
	Expect(c.CancelPackets(model.EtherTypeIPv4, model.ReactivePriority, testApp)).To(Succeed())
	msg = conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&openflow13.FlowMod{}))
	Expect(msg.(*openflow13.FlowMod).Command).To(BeEquivalentTo(openflow13.FC_DELETE_STRICT))

	// not replayed after cancellation
	conn2 := connectSwitch(ctx, c, "of:0000000000000002")
	Consistently(conn2.outbound, 100*time.Millisecond).ShouldNot(Receive())
}

func TestApplyAndRemoveFlowRules(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()
	conn := connectSwitch(ctx, c, "of:0000000000000002")

	rule := testRule("of:0000000000000002")
	result := applyAsync(ctx, c, rule)
	flowMod := answerFlowMod(conn, false)
	Expect(flowMod.Cookie).To(Equal(forwardingCookie(testApp)))
	var err error
	Eventually(result).Should(Receive(&err))
	Expect(err).To(BeNil())

	// unknown device
	unknown := *rule
	unknown.Device = "of:00000000000000ff"
	err = c.ApplyFlowRules(ctx, &unknown)
	Expect(err).ToNot(BeNil())
	Expect(err.Error()).To(ContainSubstring(ErrUnknownDevice.Error()))

	Expect(c.RemoveFlowRulesByAppID(ctx, testApp)).To(Succeed())
	msg := conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&openflow13.FlowMod{}))
	Expect(msg.(*openflow13.FlowMod).Command).To(BeEquivalentTo(openflow13.FC_DELETE))
}

func TestFlowModRejected(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()
	conn := connectSwitch(ctx, c, "of:0000000000000002")

	result := applyAsync(ctx, c, testRule("of:0000000000000002"))
	answerFlowMod(conn, true)
	var err error
	Eventually(result).Should(Receive(&err))
	Expect(err).ToNot(BeNil())
	Expect(err.Error()).To(ContainSubstring("rejected"))

	// the late barrier reply does not affect the next installation
	result = applyAsync(ctx, c, testRule("of:0000000000000002"))
	answerFlowMod(conn, false)
	Eventually(result).Should(Receive(&err))
	Expect(err).To(BeNil())
}

func TestFlowModNotConfirmed(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()
	c.FlowModTimeout = 50 * time.Millisecond
	conn := connectSwitch(ctx, c, "of:0000000000000002")

	err := c.ApplyFlowRules(ctx, testRule("of:0000000000000002"))
	Expect(err).ToNot(BeNil())
	Expect(conn.sent()).To(BeAssignableToTypeOf(&openflow13.FlowMod{}))
}

func TestFlowRemovedNotification(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()

	type removal struct {
		device model.DeviceID
		appID  uint16
		match  model.FlowMatch
	}
	removals := make(chan removal, 10)
	c.WatchFlowRemovals(func(device model.DeviceID, appID uint16, match model.FlowMatch) {
		removals <- removal{device, appID, match}
	})
	conn := connectSwitch(ctx, c, "of:0000000000000002")

	rule := testRule("of:0000000000000002")
	conn.inbound <- &openflow13.FlowRemoved{
		Cookie:      forwardingCookie(testApp),
		IdleTimeout: 10,
		Match:       forwardingFlowMod(rule).Match,
	}
	var r removal
	Eventually(removals).Should(Receive(&r))
	Expect(r.device).To(BeEquivalentTo("of:0000000000000002"))
	Expect(r.appID).To(Equal(testApp.ID))
	Expect(r.match.Key()).To(Equal(rule.Match.Key()))

	// removal of the interception flow is not reported
	conn.inbound <- &openflow13.FlowRemoved{
		Cookie: interceptCookie(testApp),
		Match:  interceptFlowMod(model.EtherTypeIPv4, model.ReactivePriority, testApp).Match,
	}
	Consistently(removals, 100*time.Millisecond).ShouldNot(Receive())
}

// installingProcessor installs a rule on the receiving switch for every packet-in.
type installingProcessor struct {
	controller *Controller
	results    chan error
}

func (p *installingProcessor) Process(ctx context.Context, event *model.PacketInEvent) {
	p.results <- p.controller.ApplyFlowRules(ctx, testRule(event.Receiver.Device))
}

func TestInstallFromPacketIn(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()
	processor := &installingProcessor{controller: c, results: make(chan error, 1)}
	Expect(c.AddProcessor(processor, 1)).To(Succeed())
	conn := connectSwitch(ctx, c, "of:0000000000000002")

	packetIn := &openflow13.PacketIn{Match: forwardingFlowMod(testRule("of:0000000000000002")).Match}
	packetIn.Data = protocol.Ethernet{
		HWDst:     model.MustParseMAC("00:00:00:00:00:bb").HardwareAddr(),
		HWSrc:     model.MustParseMAC("00:00:00:00:00:aa").HardwareAddr(),
		Ethertype: 0x0800,
	}
	conn.inbound <- packetIn

	// the receive loop keeps running while the processor waits for the confirmation
	answerFlowMod(conn, false)
	var err error
	Eventually(processor.results).Should(Receive(&err))
	Expect(err).To(BeNil())
}

func TestEchoAndDisconnect(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()

	var (
		lock    sync.Mutex
		changes []bool
	)
	c.WatchDevices(func(device model.DeviceID, connected bool) {
		lock.Lock()
		defer lock.Unlock()
		changes = append(changes, connected)
	})
	conn := connectSwitch(ctx, c, "of:0000000000000003")

	echo := openflow13.NewEchoRequest()
	echo.Xid = 42
	conn.inbound <- echo
	msg := conn.sent()
	Expect(msg).To(BeAssignableToTypeOf(&common.Header{}))
	Expect(msg.(*common.Header).Type).To(BeEquivalentTo(openflow13.Type_EchoReply))
	Expect(msg.(*common.Header).Xid).To(BeEquivalentTo(42))

	conn.errs <- net.ErrWriteToConnected
	Eventually(c.Devices).Should(BeEmpty())
	Expect(conn.isClosed()).To(BeTrue())

	Eventually(func() []bool {
		lock.Lock()
		defer lock.Unlock()
		return append([]bool{}, changes...)
	}).Should(Equal([]bool{true, false}))
}

func TestReconnectReplacesSwitch(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newTestController()

	first := connectSwitch(ctx, c, "of:0000000000000004")
	second := newFakeConnection()
	go c.runSwitch(ctx, "of:0000000000000004", second)

	Eventually(first.isClosed).Should(BeTrue())
	Consistently(c.Devices, 100*time.Millisecond).Should(ConsistOf(model.DeviceID("of:0000000000000004")))
	Expect(second.isClosed()).To(BeFalse())
}

func TestProcessorOrder(t *testing.T) {
	RegisterTestingT(t)
	c := newTestController()

	var (
		lock  sync.Mutex
		order []string
	)
	late := &recordingProcessor{name: "late", order: &order, lock: &lock}
	early := &recordingProcessor{name: "early", order: &order, lock: &lock}
	Expect(c.AddProcessor(late, 10)).To(Succeed())
	Expect(c.AddProcessor(early, 1)).To(Succeed())
	Expect(c.AddProcessor(early, 1)).ToNot(Succeed())

	c.dispatch(context.Background(), &model.PacketInEvent{})
	Expect(order).To(Equal([]string{"early", "late"}))

	Expect(c.RemoveProcessor(early)).To(Succeed())
	Expect(c.RemoveProcessor(early)).To(Succeed())
	c.dispatch(context.Background(), &model.PacketInEvent{})
	Expect(order).To(Equal([]string{"early", "late", "late"}))
}

func TestParse(t *testing.T) {
	RegisterTestingT(t)
	c := newTestController()

	_, err := c.Parse(nil)
	Expect(err).ToNot(BeNil())
	_, err = c.Parse([]byte{1, 0, 0, 8, 0, 0, 0, 1})
	Expect(err).ToNot(BeNil())

	echo := openflow13.NewEchoRequest()
	data, err := echo.MarshalBinary()
	Expect(err).To(BeNil())
	msg, err := c.Parse(data)
	Expect(err).To(BeNil())
	Expect(msg).ToNot(BeNil())
}
