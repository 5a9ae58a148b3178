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

package resolver

import (
	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// Resolver maps hardware addresses onto known hosts.
// There is no caching, every call queries the host service.
type Resolver struct {
	Deps
}

// Deps lists dependencies of the Resolver.
type Deps struct {
	Log         logging.Logger
	HostService model.HostService
	Events      events.Sink
}

// Resolve returns the host with the given MAC address.
// Unknown host is a normal outcome reported with found=false
// and an EndpointUnresolved event.
func (r *Resolver) Resolve(mac model.MAC) (host *model.Host, found bool) {
	if r.HostService != nil {
		host, found = r.HostService.GetHost(mac)
	} else {
		r.Log.Warn("Host service is not available")
	}
	if !found || host == nil {
		events.Emit(r.Events, events.EndpointUnresolved, events.Attrs{
			events.AttrMAC: mac.String(),
		})
		return nil, false
	}
	return host, true
}
