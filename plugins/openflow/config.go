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
	"time"

	"github.com/pkg/errors"
)

// Config holds the configuration of the OpenFlow controller.
type Config struct {
	// TCP address where the switches connect to
	ListenAddr string `json:"listenAddr"`

	// interval of echo requests; a switch not answering for three intervals is disconnected
	EchoInterval time.Duration `json:"echoInterval"`

	// maximum duration of the hello/features exchange
	HandshakeTimeout time.Duration `json:"handshakeTimeout"`

	// how long flow rule installation waits for the switch confirmation (0 = no limit)
	FlowModTimeout time.Duration `json:"flowModTimeout"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":6653",
		EchoInterval:     5 * time.Second,
		HandshakeTimeout: 3 * time.Second,
		FlowModTimeout:   defaultFlowModTimeout,
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listenAddr must not be empty")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshakeTimeout must be positive")
	}
	if c.FlowModTimeout < 0 {
		return errors.New("flowModTimeout must not be negative")
	}
	return nil
}
