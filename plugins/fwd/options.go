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

package fwd

import (
	"github.com/ligato/cn-infra/config"
	"github.com/ligato/cn-infra/logging"

	fwdconfig "github.com/contiv/reactivefwd/plugins/fwd/config"
)

const (
	// ConfigFlagName is name of the flag that defines the configuration file location.
	ConfigFlagName = "fwd-config"

	// ConfigFileDefault is the default name of the configuration file.
	ConfigFileDefault = "fwd.conf"

	// ConfigFlagUsage explains the purpose of 'fwd-config' flag.
	ConfigFlagUsage = "Location of the reactive forwarding configuration file"
)

// DefaultPlugin is a default instance of the reactive forwarding plugin.
var DefaultPlugin = *NewPlugin()

// NewPlugin creates a new Plugin with the provided Options.
func NewPlugin(opts ...Option) *Plugin {
	p := &Plugin{}

	p.PluginName = "fwd"

	for _, o := range opts {
		o(p)
	}

	if p.Deps.Log == nil {
		p.Deps.Log = logging.ForPlugin(p.String())
	}
	if p.Deps.Cfg == nil {
		p.Deps.Cfg = config.ForPlugin(p.String(),
			config.WithCustomizedFlag(ConfigFlagName, ConfigFileDefault, ConfigFlagUsage))
	}

	return p
}

// Option is a function that can be used in NewPlugin to customize Plugin.
type Option func(*Plugin)

// UseDeps returns Option that can inject custom dependencies.
func UseDeps(f func(*Deps)) Option {
	return func(p *Plugin) {
		f(&p.Deps)
	}
}

// UseConf returns Option that injects configuration, bypassing the config file.
func UseConf(conf fwdconfig.Config) Option {
	return func(p *Plugin) {
		p.config = &conf
	}
}
