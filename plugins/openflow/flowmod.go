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
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// OpenFlow constants, spelled out to keep them independent of the codec version.
const (
	anyPort        uint32 = 0xffffffff // OFPP_ANY
	controllerPort uint32 = 0xfffffffd // OFPP_CONTROLLER
	anyGroup       uint32 = 0xffffffff // OFPG_ANY
	allTables      uint8  = 0xff       // OFPTT_ALL
	noBuffer       uint16 = 0xffff     // OFPCML_NO_BUFFER
	sendFlowRem    uint16 = 1 << 0     // OFPFF_SEND_FLOW_REM

	// maximum idle timeout expressible in a flow-mod
	maxIdleTimeout = 0xffff * time.Second
)

// Cookie layout of the installed flows:
//   - bits 48-63: application ID
//   - bit 0: set for interception flows, clear for forwarding flows
const (
	appCookieShift        = 48
	appCookieMask  uint64 = 0xffff << appCookieShift
	interceptFlag  uint64 = 1
)

// forwardingCookie returns the cookie of forwarding flows owned by <app>.
func forwardingCookie(app model.AppID) uint64 {
	return uint64(app.ID) << appCookieShift
}

// interceptCookie returns the cookie of interception flows owned by <app>.
func interceptCookie(app model.AppID) uint64 {
	return forwardingCookie(app) | interceptFlag
}

// DeviceIDFromDPID converts datapath ID into the device identifier, "of:<16 hex digits>".
func DeviceIDFromDPID(dpid net.HardwareAddr) model.DeviceID {
	var value uint64
	if len(dpid) == 8 {
		value = binary.BigEndian.Uint64(dpid)
	} else {
		for _, b := range dpid {
			value = value<<8 | uint64(b)
		}
	}
	return model.DeviceID(fmt.Sprintf("of:%016x", value))
}

// outputInstruction returns apply-actions instruction with a single output action.
func outputInstruction(port uint32, maxLen uint16) openflow13.Instruction {
	output := openflow13.NewActionOutput(port)
	if maxLen != 0 {
		output.MaxLen = maxLen
	}
	instr := openflow13.NewInstrApplyActions()
	instr.AddAction(output, false)
	return instr
}

// forwardingFlowMod translates flow rule into an OpenFlow 1.3 flow-mod.
func forwardingFlowMod(rule *model.FlowRule) *openflow13.FlowMod {
	flowMod := openflow13.NewFlowMod()
	flowMod.Command = openflow13.FC_ADD
	flowMod.TableId = rule.TableID
	flowMod.Priority = rule.Priority
	flowMod.Cookie = forwardingCookie(rule.AppID)
	flowMod.Flags = sendFlowRem
	if !rule.Permanent {
		timeout := rule.Timeout
		if timeout > maxIdleTimeout {
			timeout = maxIdleTimeout
		}
		flowMod.IdleTimeout = uint16(timeout / time.Second)
	}

	flowMod.Match.AddField(*openflow13.NewInPortField(uint32(rule.Match.InPort)))
	flowMod.Match.AddField(*openflow13.NewEthSrcField(rule.Match.SrcMAC.HardwareAddr(), nil))
	flowMod.Match.AddField(*openflow13.NewEthDstField(rule.Match.DstMAC.HardwareAddr(), nil))

	flowMod.AddInstruction(outputInstruction(uint32(rule.OutPort), 0))
	return flowMod
}

// interceptFlowMod returns flow-mod punting all frames of the given type to the controller.
func interceptFlowMod(etherType model.EtherType, priority model.PacketPriority, app model.AppID) *openflow13.FlowMod {
	flowMod := openflow13.NewFlowMod()
	flowMod.Command = openflow13.FC_ADD
	flowMod.Priority = uint16(priority)
	flowMod.Cookie = interceptCookie(app)
	flowMod.Match.AddField(*openflow13.NewEthTypeField(etherType.Value()))
	flowMod.AddInstruction(outputInstruction(controllerPort, noBuffer))
	return flowMod
}

// cancelInterceptFlowMod removes the flow installed by interceptFlowMod.
func cancelInterceptFlowMod(etherType model.EtherType, priority model.PacketPriority, app model.AppID) *openflow13.FlowMod {
	flowMod := openflow13.NewFlowMod()
	flowMod.Command = openflow13.FC_DELETE_STRICT
	flowMod.Priority = uint16(priority)
	flowMod.Cookie = interceptCookie(app)
	flowMod.CookieMask = ^uint64(0)
	flowMod.OutPort = anyPort
	flowMod.OutGroup = anyGroup
	flowMod.Match.AddField(*openflow13.NewEthTypeField(etherType.Value()))
	return flowMod
}

// deleteByAppFlowMod removes all forwarding flows of <app> from all tables.
func deleteByAppFlowMod(app model.AppID) *openflow13.FlowMod {
	flowMod := openflow13.NewFlowMod()
	flowMod.Command = openflow13.FC_DELETE
	flowMod.TableId = allTables
	flowMod.Cookie = forwardingCookie(app)
	flowMod.CookieMask = appCookieMask | interceptFlag
	flowMod.OutPort = anyPort
	flowMod.OutGroup = anyGroup
	return flowMod
}

// packetInPort extracts the ingress port from the packet-in match.
func packetInPort(pkt *openflow13.PacketIn) (model.PortNumber, bool) {
	if pkt.Match.Type != openflow13.MatchType_OXM {
		return 0, false
	}
	for _, field := range pkt.Match.Fields {
		if field.Class != openflow13.OXM_CLASS_OPENFLOW_BASIC || field.Field != openflow13.OXM_FIELD_IN_PORT {
			continue
		}
		if inPort, ok := field.Value.(*openflow13.InPortField); ok {
			return model.PortNumber(inPort.InPort), true
		}
	}
	return 0, false
}

// barrierRequest returns barrier request with the given transaction ID.
func barrierRequest(xid uint32) *common.Header {
	return &common.Header{
		Version: openflow13.VERSION,
		Type:    openflow13.Type_BarrierRequest,
		Length:  8,
		Xid:     xid,
	}
}

// removedForwardingFlow decodes the owner and the match of a removed
// forwarding flow. Interception flows and flows with other matches are
// reported as not found.
func removedForwardingFlow(msg *openflow13.FlowRemoved) (appID uint16, match model.FlowMatch, found bool) {
	if msg.Cookie&interceptFlag != 0 || msg.Match.Type != openflow13.MatchType_OXM {
		return 0, match, false
	}
	var withPort, withSrc, withDst bool
	for _, field := range msg.Match.Fields {
		if field.Class != openflow13.OXM_CLASS_OPENFLOW_BASIC {
			continue
		}
		switch value := field.Value.(type) {
		case *openflow13.InPortField:
			match.InPort = model.PortNumber(value.InPort)
			withPort = true
		case *openflow13.EthSrcField:
			match.SrcMAC = model.MAC(value.EthSrc)
			withSrc = true
		case *openflow13.EthDstField:
			match.DstMAC = model.MAC(value.EthDst)
			withDst = true
		}
	}
	if !withPort || !withSrc || !withDst {
		return 0, match, false
	}
	return uint16(msg.Cookie >> appCookieShift), match, true
}
