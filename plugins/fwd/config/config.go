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

package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// EdgePolicy selects where and with which output port the flow rules are installed.
type EdgePolicy string

const (
	// PathEdgePolicy installs at the destination's attachment device, outputting
	// on the port of the selected path's last link.
	PathEdgePolicy EdgePolicy = "path"

	// HostEdgePolicy installs at the destination's attachment device, outputting
	// on the destination host's attachment port.
	HostEdgePolicy EdgePolicy = "host"

	// FixedEdgePolicy installs only at FixedDevice, always outputting on FixedPort.
	FixedEdgePolicy EdgePolicy = "fixed"
)

const (
	defaultAppName           = "reactivefwd"
	defaultAppID             = 0x1f
	defaultProcessorPriority = 2
	defaultFlowPriority      = 20
	defaultFlowTable         = 0
	defaultFlowTimeout       = 10 * time.Second
	defaultEventHistorySize  = 256

	reactiveInterceptPriority = "reactive"
	controlInterceptPriority  = "control"
)

// Config holds the configuration of the reactive forwarding application.
type Config struct {
	// name and numeric ID of the application; the ID tags all installed flows
	AppName string `json:"appName"`
	AppID   uint16 `json:"appID"`

	// priority of the packet processor among all processors of the packet-in bus
	ProcessorPriority int `json:"processorPriority"`

	// priority of the IPv4 interception request: "reactive" or "control"
	InterceptPriority string `json:"interceptPriority"`

	// flow rule parameters
	FlowPriority uint16        `json:"flowPriority"`
	FlowTable    uint8         `json:"flowTable"`
	Permanent    bool          `json:"permanent"`
	FlowTimeout  time.Duration `json:"flowTimeout"` // idle timeout of non-permanent rules

	// edge-installation policy ("path", "host" or "fixed") and the parameters
	// of the fixed policy
	EdgePolicy  EdgePolicy `json:"edgePolicy"`
	FixedDevice string     `json:"fixedDevice"`
	FixedPort   uint32     `json:"fixedPort"`

	// number of decision events kept in memory for the REST API
	EventHistorySize int `json:"eventHistorySize"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		AppName:           defaultAppName,
		AppID:             defaultAppID,
		ProcessorPriority: defaultProcessorPriority,
		InterceptPriority: reactiveInterceptPriority,
		FlowPriority:      defaultFlowPriority,
		FlowTable:         defaultFlowTable,
		Permanent:         true,
		FlowTimeout:       defaultFlowTimeout,
		EdgePolicy:        PathEdgePolicy,
		EventHistorySize:  defaultEventHistorySize,
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return errors.New("application name must not be empty")
	}
	switch c.InterceptPriority {
	case reactiveInterceptPriority, controlInterceptPriority:
	default:
		return errors.Errorf("invalid intercept priority '%s'", c.InterceptPriority)
	}
	switch c.EdgePolicy {
	case PathEdgePolicy, HostEdgePolicy:
	case FixedEdgePolicy:
		if c.FixedDevice == "" {
			return errors.New("fixed edge policy requires fixedDevice")
		}
	default:
		return errors.Errorf("invalid edge policy '%s'", c.EdgePolicy)
	}
	// forwarding rules must win over the interception flow punting the same frames
	if int(c.FlowPriority) <= int(c.PacketPriority()) {
		return errors.Errorf("flow priority %d must be above the %s intercept priority %d",
			c.FlowPriority, c.InterceptPriority, c.PacketPriority())
	}
	if !c.Permanent && c.FlowTimeout < time.Second {
		return errors.Errorf("flow timeout %v too short for non-permanent rules", c.FlowTimeout)
	}
	return nil
}

// App returns the application identity.
func (c *Config) App() model.AppID {
	return model.AppID{ID: c.AppID, Name: c.AppName}
}

// PacketPriority returns the priority of the interception request.
func (c *Config) PacketPriority() model.PacketPriority {
	if c.InterceptPriority == controlInterceptPriority {
		return model.ControlPriority
	}
	return model.ReactivePriority
}
