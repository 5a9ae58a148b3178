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

package main

import (
	"github.com/ligato/cn-infra/agent"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"

	"github.com/contiv/reactivefwd/plugins/fwd"
	"github.com/contiv/reactivefwd/plugins/openflow"
	"github.com/contiv/reactivefwd/plugins/statictopo"
)

// ReactiveFwdAgent runs OpenFlow controller with the reactive forwarding application.
type ReactiveFwdAgent struct {
	HTTP       *rest.Plugin
	Prometheus *prometheus.Plugin
	Topology   *statictopo.Plugin
	OpenFlow   *openflow.Plugin
	Fwd        *fwd.Plugin
}

func (a *ReactiveFwdAgent) String() string {
	return "ReactiveFwdAgent"
}

// Init is called at startup phase. Method added in order to implement Plugin interface.
func (a *ReactiveFwdAgent) Init() error {
	return nil
}

// Close is called at cleanup phase. Method added in order to implement Plugin interface.
func (a *ReactiveFwdAgent) Close() error {
	return nil
}

func main() {
	fwdPlugin := fwd.NewPlugin(fwd.UseDeps(func(deps *fwd.Deps) {
		deps.HostService = &statictopo.DefaultPlugin
		deps.TopologyService = &statictopo.DefaultPlugin
		deps.PacketService = &openflow.DefaultPlugin
		deps.FlowRuleService = &openflow.DefaultPlugin
		deps.DeviceNotifier = &openflow.DefaultPlugin
		deps.FlowRemovals = &openflow.DefaultPlugin
		deps.HTTPHandlers = &rest.DefaultPlugin
		deps.Prometheus = &prometheus.DefaultPlugin
	}))

	reactiveFwdAgent := &ReactiveFwdAgent{
		HTTP:       &rest.DefaultPlugin,
		Prometheus: &prometheus.DefaultPlugin,
		Topology:   &statictopo.DefaultPlugin,
		OpenFlow:   &openflow.DefaultPlugin,
		Fwd:        fwdPlugin,
	}

	a := agent.NewAgent(agent.AllPlugins(reactiveFwdAgent))
	if err := a.Run(); err != nil {
		logrus.DefaultLogger().Fatal(err)
	}
}
