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
	"sync"
	"sync/atomic"
	"time"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// ErrDisconnected is returned when sending to a switch that is no longer connected.
var ErrDisconnected = errors.New("switch disconnected")

// connection is the message-level transport towards a single switch.
type connection interface {
	// Outbound returns channel where the messages to send are pushed.
	Outbound() chan<- util.Message

	// Inbound returns channel delivering received messages.
	Inbound() <-chan util.Message

	// Errors returns channel delivering transport errors.
	Errors() <-chan error

	// Close shuts the connection down.
	Close()
}

// streamConnection adapts libOpenflow message stream to connection.
type streamConnection struct {
	stream    *util.MessageStream
	closeOnce sync.Once
}

func (c *streamConnection) Outbound() chan<- util.Message { return c.stream.Outbound }
func (c *streamConnection) Inbound() <-chan util.Message  { return c.stream.Inbound }
func (c *streamConnection) Errors() <-chan error          { return c.stream.Error }

func (c *streamConnection) Close() {
	c.closeOnce.Do(func() {
		c.stream.Shutdown <- true
	})
}

// packetInHandler consumes packet-in events of a switch.
type packetInHandler func(ctx context.Context, event *model.PacketInEvent)

// flowRemovedHandler consumes notifications about removed forwarding flows.
type flowRemovedHandler func(device model.DeviceID, appID uint16, match model.FlowMatch)

const (
	// packet-ins waiting for the processors; the excess is dropped
	packetInQueueSize = 256

	// barrier transaction IDs are allocated from the upper half of the range,
	// the codec numbers other requests from 1
	barrierXidBase uint32 = 1 << 31
)

// confirmation is a request waiting for the barrier reply, or for the error
// reported by the switch.
type confirmation struct {
	requestXid uint32
	barrierXid uint32
	result     chan error
}

// Switch is a connected OpenFlow 1.3 switch.
type Switch struct {
	log    logging.Logger
	device model.DeviceID
	conn   connection

	echoInterval  time.Duration
	onPacketIn    packetInHandler
	onFlowRemoved flowRemovedHandler
	packetIns     chan *model.PacketInEvent

	barrierXid  uint32
	pendingLock sync.Mutex
	pending     map[uint32]*confirmation // request or barrier xid -> confirmation

	lastSeenLock sync.Mutex
	lastSeen     time.Time

	done     chan struct{}
	doneOnce sync.Once
}

func newSwitch(log logging.Logger, device model.DeviceID, conn connection, echoInterval time.Duration,
	onPacketIn packetInHandler, onFlowRemoved flowRemovedHandler) *Switch {

	return &Switch{
		log:           log,
		device:        device,
		conn:          conn,
		echoInterval:  echoInterval,
		onPacketIn:    onPacketIn,
		onFlowRemoved: onFlowRemoved,
		packetIns:     make(chan *model.PacketInEvent, packetInQueueSize),
		pending:       make(map[uint32]*confirmation),
		lastSeen:      time.Now(),
		done:          make(chan struct{}),
	}
}

// Device returns identifier of the switch.
func (s *Switch) Device() model.DeviceID {
	return s.device
}

// Send queues the message for sending. It blocks until the message is
// accepted by the transport, the context is cancelled or the switch
// disconnects.
func (s *Switch) Send(ctx context.Context, msg util.Message) error {
	select {
	case <-s.done:
		return ErrDisconnected
	default:
	}
	select {
	case s.conn.Outbound() <- msg:
		return nil
	case <-s.done:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendConfirmed sends the request followed by a barrier and waits until
// the switch either confirms the barrier or rejects the request with an error
// message. <xid> is the transaction ID of the request.
func (s *Switch) SendConfirmed(ctx context.Context, msg util.Message, xid uint32) error {
	conf := &confirmation{
		requestXid: xid,
		barrierXid: barrierXidBase | (atomic.AddUint32(&s.barrierXid, 1) &^ barrierXidBase),
		result:     make(chan error, 1),
	}
	s.pendingLock.Lock()
	s.pending[conf.requestXid] = conf
	s.pending[conf.barrierXid] = conf
	s.pendingLock.Unlock()
	defer s.forget(conf)

	if err := s.Send(ctx, msg); err != nil {
		return err
	}
	if err := s.Send(ctx, barrierRequest(conf.barrierXid)); err != nil {
		return err
	}
	select {
	case err := <-conf.result:
		return err
	case <-s.done:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// confirm completes the confirmation registered under <xid>, if any.
func (s *Switch) confirm(xid uint32, err error) bool {
	s.pendingLock.Lock()
	conf, found := s.pending[xid]
	s.pendingLock.Unlock()
	if !found {
		return false
	}
	s.forget(conf)
	select {
	case conf.result <- err:
	default:
	}
	return true
}

func (s *Switch) forget(conf *confirmation) {
	s.pendingLock.Lock()
	defer s.pendingLock.Unlock()
	if s.pending[conf.requestXid] == conf {
		delete(s.pending, conf.requestXid)
	}
	if s.pending[conf.barrierXid] == conf {
		delete(s.pending, conf.barrierXid)
	}
}

// Disconnect closes the connection and stops the receive loop.
func (s *Switch) Disconnect() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Done is closed once the switch gets disconnected.
func (s *Switch) Done() <-chan struct{} {
	return s.done
}

// run is the receive loop of the switch. It returns when the connection fails,
// the switch stops answering echo requests or Disconnect is called.
func (s *Switch) run(ctx context.Context) error {
	var echoTicker <-chan time.Time
	if s.echoInterval > 0 {
		ticker := time.NewTicker(s.echoInterval)
		defer ticker.Stop()
		echoTicker = ticker.C
	}

	// packet-ins are processed outside of the receive loop, processors may
	// wait for replies of this switch
	go s.processPacketIns(ctx)

	for {
		select {
		case msg, ok := <-s.conn.Inbound():
			if !ok {
				s.Disconnect()
				return ErrDisconnected
			}
			s.touch()
			s.handleMessage(ctx, msg)

		case err := <-s.conn.Errors():
			s.Disconnect()
			return errors.Wrapf(err, "connection to %s failed", s.device)

		case <-echoTicker:
			if s.sinceLastSeen() > 3*s.echoInterval {
				s.Disconnect()
				return errors.Errorf("switch %s stopped responding to echo requests", s.device)
			}
			if err := s.Send(ctx, openflow13.NewEchoRequest()); err != nil {
				s.log.Warnf("Failed to send echo request to %s: %v", s.device, err)
			}

		case <-s.done:
			return nil

		case <-ctx.Done():
			s.Disconnect()
			return nil
		}
	}
}

// handleMessage processes one message received from the switch.
func (s *Switch) handleMessage(ctx context.Context, msg util.Message) {
	switch m := msg.(type) {
	case *common.Header:
		switch m.Type {
		case openflow13.Type_EchoRequest:
			reply := openflow13.NewEchoReply()
			reply.Xid = m.Xid
			if err := s.Send(ctx, reply); err != nil {
				s.log.Warnf("Failed to send echo reply to %s: %v", s.device, err)
			}
		case openflow13.Type_EchoReply:
		case openflow13.Type_BarrierReply:
			s.confirm(m.Xid, nil)
		default:
			s.log.Debugf("Ignoring message type %d from %s", m.Type, s.device)
		}

	case *openflow13.ErrorMsg:
		err := errors.Errorf("switch %s rejected request %d: type=%d code=%d",
			s.device, m.Header.Xid, m.Type, m.Code)
		if !s.confirm(m.Header.Xid, err) {
			s.log.Warn(err)
		}

	case *openflow13.FlowRemoved:
		appID, match, found := removedForwardingFlow(m)
		if !found {
			s.log.Debugf("Ignoring removal of flow with cookie %#x from %s", m.Cookie, s.device)
			return
		}
		if s.onFlowRemoved != nil {
			s.onFlowRemoved(s.device, appID, match)
		}

	case *openflow13.PacketIn:
		event, err := s.packetInEvent(m)
		if err != nil {
			s.log.Warnf("Dropping packet-in from %s: %v", s.device, err)
			return
		}
		select {
		case s.packetIns <- event:
		default:
			s.log.Warnf("Packet-in queue of %s is full, dropping packet-in from port %d",
				s.device, event.Receiver.Port)
		}

	case nil:
		// unparsable message, already logged by the parser

	default:
		s.log.Debugf("Ignoring %T from %s", msg, s.device)
	}
}

// packetInEvent converts OpenFlow packet-in into the packet-in event.
// Frame decoding is left to the packet processors.
func (s *Switch) packetInEvent(pkt *openflow13.PacketIn) (*model.PacketInEvent, error) {
	inPort, found := packetInPort(pkt)
	if !found {
		return nil, errors.New("packet-in without in_port")
	}
	raw, err := pkt.Data.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize packet-in payload")
	}
	return &model.PacketInEvent{
		Receiver: model.ConnectPoint{Device: s.device, Port: inPort},
		Raw:      raw,
	}, nil
}

// processPacketIns passes queued packet-ins to the handler until the switch
// disconnects.
func (s *Switch) processPacketIns(ctx context.Context) {
	for {
		select {
		case event := <-s.packetIns:
			if s.onPacketIn != nil {
				s.onPacketIn(ctx, event)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Switch) touch() {
	s.lastSeenLock.Lock()
	defer s.lastSeenLock.Unlock()
	s.lastSeen = time.Now()
}

func (s *Switch) sinceLastSeen() time.Duration {
	s.lastSeenLock.Lock()
	defer s.lastSeenLock.Unlock()
	return time.Since(s.lastSeen)
}
