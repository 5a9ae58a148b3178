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

package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MAC is an Ethernet hardware address.
type MAC net.HardwareAddr

// ParseMAC parses MAC address in any format accepted by net.ParseMAC.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid MAC address '%s'", s)
	}
	return MAC(hw), nil
}

// MustParseMAC is like ParseMAC but panics on invalid input.
// Meant for constants and tests.
func MustParseMAC(s string) MAC {
	mac, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

// String returns the canonical (lower-case, colon separated) form of the address.
func (m MAC) String() string {
	return net.HardwareAddr(m).String()
}

// HardwareAddr converts MAC back to net.HardwareAddr.
func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m)
}

// Equal returns true if both addresses are the same.
func (m MAC) Equal(other MAC) bool {
	return m.String() == other.String()
}

// DeviceID uniquely identifies a network device (switch).
type DeviceID string

// PortNumber identifies a port of a device.
type PortNumber uint32

// String returns decimal representation of the port number.
func (p PortNumber) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// ConnectPoint is a (device, port) pair.
type ConnectPoint struct {
	Device DeviceID
	Port   PortNumber
}

// String returns "<device>/<port>".
func (cp ConnectPoint) String() string {
	return fmt.Sprintf("%s/%d", cp.Device, cp.Port)
}

// ParseConnectPoint parses connect point from the "<device>/<port>" format.
func ParseConnectPoint(s string) (ConnectPoint, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return ConnectPoint{}, errors.Errorf("invalid connect point '%s'", s)
	}
	port, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return ConnectPoint{}, errors.Wrapf(err, "invalid port in connect point '%s'", s)
	}
	return ConnectPoint{Device: DeviceID(s[:idx]), Port: PortNumber(port)}, nil
}

// Host is a network endpoint known to the host-tracking subsystem.
type Host struct {
	MAC      MAC
	Location ConnectPoint
}

// String returns human-readable representation of the host.
func (h Host) String() string {
	return fmt.Sprintf("Host <MAC:%s Location:%s>", h.MAC, h.Location)
}

// Link is a directed edge between two connect points.
type Link struct {
	Src ConnectPoint
	Dst ConnectPoint
}

// String returns "<src> -> <dst>".
func (l Link) String() string {
	return l.Src.String() + " -> " + l.Dst.String()
}

// Path is an ordered sequence of links connecting a source device with
// a destination device. Path with no links connects a device with itself.
type Path struct {
	Links []Link
}

// HopCount returns the number of links of the path.
func (p *Path) HopCount() int {
	return len(p.Links)
}

// IsEmpty returns true for path without links.
func (p *Path) IsEmpty() bool {
	return p == nil || len(p.Links) == 0
}

// Src returns the first connect point of the path.
func (p *Path) Src() ConnectPoint {
	if p.IsEmpty() {
		return ConnectPoint{}
	}
	return p.Links[0].Src
}

// Dst returns the last connect point of the path.
func (p *Path) Dst() ConnectPoint {
	if p.IsEmpty() {
		return ConnectPoint{}
	}
	return p.Links[len(p.Links)-1].Dst
}

// Devices returns the sequence of devices traversed by the path.
func (p *Path) Devices() (devices []DeviceID) {
	if p.IsEmpty() {
		return nil
	}
	for _, link := range p.Links {
		devices = append(devices, link.Src.Device)
	}
	return append(devices, p.Dst().Device)
}

// String returns human-readable representation of the path.
func (p *Path) String() string {
	if p == nil {
		return "Path <nil>"
	}
	var links []string
	for _, link := range p.Links {
		links = append(links, link.String())
	}
	return "Path [" + strings.Join(links, ", ") + "]"
}

// EtherType enumerates frame types distinguished by the forwarding core.
type EtherType int

const (
	// EtherTypeOther stands for any ether-type not listed below.
	EtherTypeOther EtherType = iota

	// EtherTypeLLDP is the link-layer discovery protocol.
	EtherTypeLLDP

	// EtherTypeARP is the address resolution protocol.
	EtherTypeARP

	// EtherTypeIPv4 is the Internet protocol version 4.
	EtherTypeIPv4
)

const (
	lldpEtherTypeValue = 0x88cc
	arpEtherTypeValue  = 0x0806
	ipv4EtherTypeValue = 0x0800
)

// EtherTypeFromValue maps IEEE ether-type code onto EtherType.
func EtherTypeFromValue(value uint16) EtherType {
	switch value {
	case lldpEtherTypeValue:
		return EtherTypeLLDP
	case arpEtherTypeValue:
		return EtherTypeARP
	case ipv4EtherTypeValue:
		return EtherTypeIPv4
	}
	return EtherTypeOther
}

// Value returns IEEE ether-type code (0 for EtherTypeOther).
func (et EtherType) Value() uint16 {
	switch et {
	case EtherTypeLLDP:
		return lldpEtherTypeValue
	case EtherTypeARP:
		return arpEtherTypeValue
	case EtherTypeIPv4:
		return ipv4EtherTypeValue
	}
	return 0
}

// String converts EtherType into a human-readable string.
func (et EtherType) String() string {
	switch et {
	case EtherTypeLLDP:
		return "LLDP"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeIPv4:
		return "IPV4"
	}
	return "OTHER"
}

// Frame is the Ethernet-layer view of a packet-in payload.
type Frame struct {
	SrcMAC    MAC
	DstMAC    MAC
	EtherType EtherType
}

// String returns human-readable representation of the frame.
func (f Frame) String() string {
	return fmt.Sprintf("Frame <Src:%s Dst:%s Type:%s>", f.SrcMAC, f.DstMAC, f.EtherType)
}

// PacketInEvent describes one frame punted to the controller.
// Frame may be left nil by the producer, in which case Raw must carry
// the undecoded Ethernet frame.
type PacketInEvent struct {
	Frame    *Frame
	Receiver ConnectPoint
	Raw      []byte
}

// AppID is the identity of the application owning flow rules
// and interception requests.
type AppID struct {
	ID   uint16
	Name string
}

// String returns "<name>(<id>)".
func (a AppID) String() string {
	return fmt.Sprintf("%s(%d)", a.Name, a.ID)
}

// FlowMatch selects traffic to which a flow rule applies.
type FlowMatch struct {
	InPort PortNumber
	SrcMAC MAC
	DstMAC MAC
}

// Key returns a string uniquely identifying the match.
func (m FlowMatch) Key() string {
	return fmt.Sprintf("in_port=%d,eth_src=%s,eth_dst=%s", m.InPort, m.SrcMAC, m.DstMAC)
}

// FlowRule is a match-action forwarding instruction for a single device.
type FlowRule struct {
	Device    DeviceID
	Match     FlowMatch
	OutPort   PortNumber
	Priority  uint16
	Permanent bool
	Timeout   time.Duration // only for non-permanent rules
	AppID     AppID
	TableID   uint8
}

// Key returns a string uniquely identifying the (device, match) pair.
func (r *FlowRule) Key() string {
	return string(r.Device) + "|" + r.Match.Key()
}

// String returns human-readable representation of the rule.
func (r *FlowRule) String() string {
	return fmt.Sprintf("FlowRule <Device:%s Table:%d Priority:%d Match:{%s} Output:%d Permanent:%t App:%s>",
		r.Device, r.TableID, r.Priority, r.Match.Key(), r.OutPort, r.Permanent, r.AppID)
}
