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
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// Classify returns the Ethernet-layer view of the packet-in event.
// Pre-parsed frame is returned as is, otherwise the raw payload is decoded.
// For 802.1Q-tagged frames the ether-type of the encapsulated payload is used.
func Classify(event *model.PacketInEvent) (*model.Frame, error) {
	if event == nil {
		return nil, errors.New("nil packet-in event")
	}
	if event.Frame != nil {
		return event.Frame, nil
	}
	if len(event.Raw) == 0 {
		return nil, errors.New("packet-in without payload")
	}

	packet := gopacket.NewPacket(event.Raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, errors.Wrap(errLayer.Error(), "failed to decode Ethernet header")
		}
		return nil, errors.New("not an Ethernet frame")
	}
	eth := ethLayer.(*layers.Ethernet)

	etherType := eth.EthernetType
	if etherType == layers.EthernetTypeDot1Q {
		if dot1qLayer := packet.Layer(layers.LayerTypeDot1Q); dot1qLayer != nil {
			etherType = dot1qLayer.(*layers.Dot1Q).Type
		}
	}

	return &model.Frame{
		SrcMAC:    model.MAC(eth.SrcMAC),
		DstMAC:    model.MAC(eth.DstMAC),
		EtherType: model.EtherTypeFromValue(uint16(etherType)),
	}, nil
}
